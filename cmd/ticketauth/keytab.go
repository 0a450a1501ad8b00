package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kardianos/ticketauth/kerb"
)

func newKeytabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keytab",
		Short: "Write the TGS and SS keys to a keytab",
		Long: `Derive the TGS (krbtgt/REALM) and SS (auth/REALM) private keys from two
secrets and write them to a keytab. The configuration is updated to use it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tgsSecret, err := readSecret(cmd, "tgs-secret", "TGS secret")
			if err != nil {
				return err
			}
			ssSecret, err := readSecret(cmd, "ss-secret", "SS secret")
			if err != nil {
				return err
			}
			kvno, _ := cmd.Flags().GetUint8("kvno")
			kt, err := kerb.NewServerKeytab(conf.Realm, tgsSecret, ssSecret, kvno)
			if err != nil {
				return err
			}
			b, err := kt.Marshal()
			if err != nil {
				return fmt.Errorf("marshal keytab: %w", err)
			}

			out, _ := cmd.Flags().GetString("out")
			if err := os.WriteFile(conf.ResolvePath(out), b, 0o600); err != nil {
				return fmt.Errorf("write keytab: %w", err)
			}
			conf.Keytab = out
			if err := conf.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", conf.ResolvePath(out))
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "ticketauth.keytab", "Keytab path, relative to the configuration file")
	cmd.Flags().String("tgs-secret", "", "TGS secret (prompted if empty)")
	cmd.Flags().String("ss-secret", "", "SS secret (prompted if empty)")
	cmd.Flags().Uint8("kvno", 1, "Key version number")
	return cmd
}

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kardianos/ticketauth/kerb"
)

func newHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash USER",
		Short: "Print the password digest of a user",
		Long:  `Derive the password digest of a user with the configured hasher. With --set the digest replaces the user's entry in the configuration.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			h, err := conf.Hasher()
			if err != nil {
				return err
			}
			pw, err := readSecret(cmd, "password", "Password")
			if err != nil {
				return err
			}
			d, err := h.HashPassword(args[0], pw)
			if err != nil {
				return err
			}
			defer kerb.Wipe(d)

			if set, _ := cmd.Flags().GetBool("set"); set {
				conf.SetUserDigest(args[0], d)
				if err := conf.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(d))
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Password (prompted if empty)")
	cmd.Flags().Bool("set", false, "Store the digest in the configuration")
	return cmd
}

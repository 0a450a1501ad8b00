package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kardianos/ticketauth/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long:  `Create a configuration file with default settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			conf := config.Default(path)
			if realm, _ := cmd.Flags().GetString("realm"); realm != "" {
				conf.Realm = realm
			}
			if err := conf.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("realm", "", "Realm of the new configuration")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	return cmd
}

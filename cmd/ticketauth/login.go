package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kardianos/ticketauth/kerb"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login USER",
		Short: "Log in and call the service",
		Long:  `Run the KDC and TGS exchanges for USER against an in-process server, then present the ticket to the SS --calls times.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, _ := cmd.Flags().GetInt("calls")
			s, err := openSession(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.close()
			for i := 0; i < calls; i++ {
				if _, err := s.client.Authorize(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s authorized (%d calls)\n", args[0], calls)
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Password (prompted if empty)")
	cmd.Flags().Int("calls", 1, "Number of SS calls")
	cmd.Flags().String("addr", "127.0.0.1", "Client address recorded in the tickets")
	return cmd
}

func newPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd USER",
		Short: "Change a user's password",
		Long:  `Log in as USER, change the password through the SS and store the new digest in the configuration.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, args[0])
			if err != nil {
				return err
			}
			defer s.close()
			pw, err := readSecret(cmd, "new-password", "New password")
			if err != nil {
				return err
			}
			if err := s.client.ChangePassword(cmd.Context(), pw); err != nil {
				return err
			}
			d, err := s.server.Engine().Registry().LookupPasswordDigest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer kerb.Wipe(d)
			s.conf.SetUserDigest(args[0], d)
			if err := s.conf.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password of %s changed\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Current password (prompted if empty)")
	cmd.Flags().String("new-password", "", "New password (prompted if empty)")
	cmd.Flags().String("addr", "127.0.0.1", "Client address recorded in the tickets")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kardianos/ticketauth/authlog"
	"github.com/kardianos/ticketauth/config"
)

const defaultConfig = "ticketauth.toml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ticketauth",
		Short:         "Ticket based authentication tool",
		Long:          `Manage the ticketauth configuration and keytab, and run the KDC, TGS and SS exchanges in-process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfig, "Path to the configuration file")
	root.AddCommand(
		newInitCmd(),
		newHashCmd(),
		newKeytabCmd(),
		newLoginCmd(),
		newPasswdCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func newLogger(conf *config.Config) (*authlog.Logger, error) {
	log, err := conf.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// readSecret returns the flag value if set, and otherwise prompts for it.
// The prompt does not echo when stdin is a terminal.
func readSecret(cmd *cobra.Command, flag, prompt string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt+": ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read %s: %w", flag, err)
		}
		return string(b), nil
	}
	return readLine(cmd.InOrStdin())
}

// readLine reads one byte at a time so later prompts still see the rest of
// the input.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				break
			}
			sb.WriteByte(b[0])
		}
		if err == io.EOF {
			if sb.Len() == 0 {
				return "", fmt.Errorf("read input: %w", io.ErrUnexpectedEOF)
			}
			break
		}
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quarrydata/quarry/pkg/client"
)

func newLoginCmd(e *env) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Authenticate and save the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]

			if password == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", username)
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = string(raw)
			}

			resp, err := e.client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			tf := &client.TokenFile{
				Token:   resp.Token,
				Expires: resp.Expires,
				Server:  e.cfg.ServerURL,
				Login:   resp.User.Login,
			}
			if err := client.SaveTokenFile(e.cfg.TokenFile, tf); err != nil {
				return err
			}

			color.Green("Logged in as %s", resp.User.Login)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.client.AuthToken() != "" {
				if err := e.client.Logout(cmd.Context()); err != nil {
					// The local token is removed regardless.
					color.Yellow("server logout failed: %v", err)
				}
			}
			if err := os.Remove(e.cfg.TokenFile); err != nil && !os.IsNotExist(err) {
				return err
			}
			color.Green("Logged out")
			return nil
		},
	}
}

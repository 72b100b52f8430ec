package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/scrapedeck/internal/auth"
)

var (
	loginUser          string
	loginPassword      string
	loginPasswordStdin bool
	statusVerify       bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Log in to the backend and manage the stored token",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange a username and password for an API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if loginPasswordStdin {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		svc := auth.NewService(deck.client, deck.store, deck.logger)
		sess, err := svc.Login(cmd.Context(), auth.Credentials{Username: loginUser, Password: password}, deck.cfg.AuthScheme)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", green(sess.Username))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := auth.NewService(deck.client, deck.store, deck.logger)
		if err := svc.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials requests will use",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		svc := auth.NewService(deck.client, deck.store, deck.logger)

		switch {
		case deck.cfg.AuthToken != "":
			fmt.Fprintln(out, "Using the token from configuration")
		default:
			sess, err := svc.Current(cmd.Context())
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			fmt.Fprintf(out, "Logged in as %s since %s\n", green(sess.Username), sess.CreatedAt.Local().Format("2006-01-02 15:04"))
		}

		if statusVerify {
			u, err := svc.Whoami(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Backend user: %s (id %d)\n", u.Username, u.ID)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "Username (required)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
	loginCmd.MarkFlagRequired("username")

	authStatusCmd.Flags().BoolVar(&statusVerify, "verify", false, "Ask the backend who the token belongs to")

	authCmd.AddCommand(loginCmd, logoutCmd, authStatusCmd)
}

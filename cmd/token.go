package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/jobdesk/naukri-refresh/internal/config"
	"github.com/jobdesk/naukri-refresh/internal/mailbox"
)

const (
	googleAuthURL = "https://accounts.google.com/o/oauth2/auth"
	// gmailScope grants full mailbox access; IMAP via XOAUTH2 accepts
	// nothing narrower.
	gmailScope = "https://mail.google.com/"
)

// newTokenCmd creates the `token` command, a one-time interactive bootstrap
// that exchanges an authorization code for the refresh token the run command
// needs in GMAIL_REFRESH_TOKEN.
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain a Gmail refresh token for OTP mailbox access",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := os.Getenv(config.EnvClientID)
			clientSecret := os.Getenv(config.EnvClientSecret)
			if clientID == "" || clientSecret == "" {
				return fmt.Errorf("set %s and %s first", config.EnvClientID, config.EnvClientSecret)
			}

			oc := &oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scopes:       []string{gmailScope},
				RedirectURL:  "http://localhost",
				Endpoint: oauth2.Endpoint{
					AuthURL:  googleAuthURL,
					TokenURL: mailbox.GoogleTokenURL,
				},
			}

			url := oc.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in a browser and authorize access:\n\n  %s\n\n", url)
			fmt.Fprint(cmd.OutOrStdout(), "Paste the authorization code (the `code` query parameter of the redirect): ")

			reader := bufio.NewReader(cmd.InOrStdin())
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			token, err := oc.Exchange(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("exchange authorization code: %w", err)
			}
			if token.RefreshToken == "" {
				return fmt.Errorf("google returned no refresh token; revoke the app's access and try again")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nexport %s=%q\n", config.EnvRefreshToken, token.RefreshToken)
			return nil
		},
	}
	return tokenCmd
}

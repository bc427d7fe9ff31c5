package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/skippednote/granola-skill/internal/auth"
)

// Login-specific flags
var (
	loginNoBrowser bool
)

// newLoginCmd creates the login command, which runs the full browser-based
// authorization flow and stores the resulting credentials.
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize via the browser and store credentials",
		Long: `Run the OAuth authorization flow for the Granola API.

This discovers the authorization server from the protected resource,
registers a client, opens your browser for approval, and stores the
resulting tokens in the credential file.

Examples:
  granola-auth login                # Authorize with the configured resource
  granola-auth login --no-browser   # Print the URL instead of opening a browser
  granola-auth login --port 8976    # Use a different local callback port`,
		RunE: runLogin,
	}

	cmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false,
		"print the authorization URL instead of opening a browser")

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := []auth.AuthorizerOption{
		auth.WithPrinter(func(format string, a ...interface{}) {
			fmt.Fprintf(cmd.OutOrStdout(), format, a...)
		}),
	}

	if loginNoBrowser {
		// The URL is printed by the flow; suppress the launch itself
		opts = append(opts, auth.WithBrowserOpener(func(string) error { return nil }))
	}

	authorizer := auth.NewAuthorizer(cfg, newStore(cfg), opts...)

	// The spinner would make the printed URL hard to copy in no-browser mode
	if !loginNoBrowser {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for authorization to complete in your browser..."
		s.Start()
		defer s.Stop()
	}

	token, err := authorizer.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nAuthorization successful. Credentials stored in %s\n", cfg.CredentialFile)
	if !token.ExpiresAt.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "Access token expires %s.\n", formatExpiryWithDirection(token.ExpiresAt))
	}
	return nil
}

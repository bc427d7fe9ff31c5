package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/skippednote/granola-skill/internal/auth"
)

// Refresh-specific flags
var (
	refreshForce bool
)

// newRefreshCmd creates the refresh command, which renews stored credentials
// without browser interaction.
func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Renew the stored access token",
		Long: `Renew the stored access token using the refresh token.

When the access token is still valid for more than a minute, nothing is
refreshed and the command reports the remaining validity. Use --force to
refresh regardless.

If no refresh token is stored, the command fails with exit code 2; run
'granola-auth login' to authorize first.`,
		RunE: runRefresh,
	}

	cmd.Flags().BoolVar(&refreshForce, "force", false,
		"refresh even if the access token is still valid")

	return cmd
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	authorizer := auth.NewAuthorizer(cfg, newStore(cfg))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Refreshing access token..."
	s.Start()

	result, err := authorizer.Renew(cmd.Context(), refreshForce)
	s.Stop()
	if err != nil {
		return err
	}

	if result.Refreshed {
		fmt.Fprintf(cmd.OutOrStdout(), "Access token refreshed. Expires %s.\n",
			formatExpiryWithDirection(result.ExpiresAt))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Access token still valid (expires %s). Use --force to refresh anyway.\n",
			formatExpiryWithDirection(result.ExpiresAt))
	}
	return nil
}

package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command, which inspects the stored
// credentials without touching the network.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored credential status",
		Long: `Show the state of the stored Granola credentials.

This inspects the credential file only; no network requests are made, so
a token revoked server-side may still be reported as valid here.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	record, err := newStore(cfg).Load()
	if err != nil {
		return err
	}

	if record.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "No credentials stored in %s\n", cfg.CredentialFile)
		fmt.Fprintln(cmd.OutOrStdout(), "Run: granola-auth login")
		return nil
	}

	expiresAt := time.Unix(record.ExpiresAt, 0)

	var state string
	switch {
	case record.AccessToken == "":
		state = text.FgYellow.Sprint("No access token")
	case time.Now().Before(expiresAt):
		state = text.FgGreen.Sprint("Valid")
	default:
		state = text.FgYellow.Sprint("Expired")
	}

	refresh := text.FgYellow.Sprint("Not available (run 'granola-auth login' on expiry)")
	if record.HasRefreshMaterial() {
		refresh = text.FgGreen.Sprint("Available")
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Credential file", cfg.CredentialFile},
		{"Status", state},
		{"Access token", maskToken(record.AccessToken)},
		{"Expires", formatExpiryWithDirection(expiresAt)},
		{"Refresh", refresh},
		{"Client ID", record.ClientID},
		{"Token endpoint", record.TokenEndpoint},
	})
	t.Render()

	return nil
}

// maskToken shows just enough of a token to correlate it with logs elsewhere
// without disclosing the credential.
func maskToken(token string) string {
	if token == "" {
		return text.FgHiBlack.Sprint("(none)")
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

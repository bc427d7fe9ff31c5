package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/skippednote/granola-skill/internal/auth"
	"github.com/skippednote/granola-skill/pkg/oauth"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "granola-auth" {
		t.Errorf("Expected Use to be 'granola-auth', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
}

func TestSubcommands(t *testing.T) {
	commands := rootCmd.Commands()

	expectedCommands := []string{"login", "refresh", "status", "version"}
	foundCommands := make(map[string]bool)

	for _, cmd := range commands {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "missing refresh material",
			err:  auth.ErrMissingRefreshMaterial,
			want: ExitCodeAuthRequired,
		},
		{
			name: "wrapped missing refresh material",
			err:  fmt.Errorf("refresh failed: %w", auth.ErrMissingRefreshMaterial),
			want: ExitCodeAuthRequired,
		},
		{
			name: "flow timeout",
			err:  &auth.FlowError{Kind: auth.FlowTimeout},
			want: ExitCodeAuthFailed,
		},
		{
			name: "state mismatch",
			err:  &auth.FlowError{Kind: auth.FlowStateMismatch},
			want: ExitCodeAuthFailed,
		},
		{
			name: "listener port in use",
			err:  &auth.ListenerError{Port: 3000, PortInUse: true},
			want: ExitCodeAuthFailed,
		},
		{
			name: "discovery failure",
			err:  &oauth.DiscoveryError{Step: "probe", Status: 500},
			want: ExitCodeAuthFailed,
		},
		{
			name: "registration failure",
			err:  &oauth.RegistrationError{Status: 400},
			want: ExitCodeAuthFailed,
		},
		{
			name: "token exchange failure",
			err:  &oauth.TokenExchangeError{Grant: "authorization_code", Status: 400},
			want: ExitCodeAuthFailed,
		},
		{
			name: "generic error",
			err:  errors.New("something else"),
			want: ExitCodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRootCommandHelp(t *testing.T) {
	var buf bytes.Buffer

	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Error executing help command: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "granola-auth") {
		t.Errorf("Help output should contain 'granola-auth'. Got: %q", output)
	}
	if !strings.Contains(output, "login") {
		t.Errorf("Help output should list the login subcommand. Got: %q", output)
	}
}

package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/skippednote/granola-skill/internal/auth"
	"github.com/skippednote/granola-skill/internal/config"
	"github.com/skippednote/granola-skill/internal/credentials"
	"github.com/skippednote/granola-skill/pkg/logging"
	"github.com/skippednote/granola-skill/pkg/oauth"
)

// Exit codes for CLI commands.
// These follow common conventions so scripts can branch on the outcome.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared by all subcommands.
var (
	configFile     string
	credentialFile string
	resourceURL    string
	callbackPort   int
	debug          bool
)

// rootCmd represents the base command for the granola-auth application.
var rootCmd = &cobra.Command{
	Use:   "granola-auth",
	Short: "Acquire and renew Granola API credentials",
	Long: `granola-auth obtains OAuth credentials for the Granola API through a
browser-based authorization flow and keeps them fresh via token refresh.

Credentials are stored in a KEY=value file alongside any entries written
by other tools, which are preserved untouched.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logging.LevelWarn
		if debug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
		return nil
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the
// application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles
// subcommands and flags. This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "granola-auth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if errors.Is(err, auth.ErrMissingRefreshMaterial) {
		return ExitCodeAuthRequired
	}

	var flowErr *auth.FlowError
	if errors.As(err, &flowErr) {
		return ExitCodeAuthFailed
	}

	var listenerErr *auth.ListenerError
	if errors.As(err, &listenerErr) {
		return ExitCodeAuthFailed
	}

	var discoveryErr *oauth.DiscoveryError
	if errors.As(err, &discoveryErr) {
		return ExitCodeAuthFailed
	}

	var registrationErr *oauth.RegistrationError
	if errors.As(err, &registrationErr) {
		return ExitCodeAuthFailed
	}

	var exchangeErr *oauth.TokenExchangeError
	if errors.As(err, &exchangeErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}

	if resourceURL != "" {
		cfg.ResourceURL = resourceURL
	}
	if callbackPort != 0 {
		cfg.CallbackPort = callbackPort
	}
	if credentialFile != "" {
		cfg.CredentialFile = credentialFile
	}

	return cfg, nil
}

// newStore creates the credential store for the resolved configuration.
func newStore(cfg config.Config) *credentials.Store {
	return credentials.NewStore(cfg.CredentialFile)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config directory (default is $HOME/.config/granola-skill)")
	rootCmd.PersistentFlags().StringVar(&credentialFile, "credentials", "",
		"credential file to read and write (overrides config)")
	rootCmd.PersistentFlags().StringVar(&resourceURL, "resource", "",
		"protected resource URL to authorize against (overrides config)")
	rootCmd.PersistentFlags().IntVar(&callbackPort, "port", 0,
		"local port for the OAuth redirect listener (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

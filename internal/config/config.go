package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skippednote/granola-skill/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/granola-skill"
	configFileName = "config.yaml"

	// credentialFileName is the line-oriented KEY=value file the credential
	// store owns the GRANOLA_ keys in.
	credentialFileName = ".env"
)

// Defaults for the Granola MCP resource. Every value can be overridden by the
// config file or command-line flags.
const (
	// DefaultResourceURL is the protected resource the credentials are for.
	DefaultResourceURL = "https://mcp.granola.ai/mcp"

	// DefaultCallbackPort is the fixed local port for the OAuth redirect
	// listener. The redirect URI registered with the authorization server is
	// derived from it, so changing the port invalidates prior registrations.
	DefaultCallbackPort = 3000

	// DefaultClientName is the client_name declared during dynamic client
	// registration.
	DefaultClientName = "granola-skill"

	// DefaultAuthTimeout bounds the wait for the browser-driven callback.
	DefaultAuthTimeout = 5 * time.Minute
)

// Config carries every tunable the flow components need. It is resolved once
// in cmd and passed into each component; nothing reads it as a global, so
// tests can substitute alternate endpoints and ports.
type Config struct {
	// ResourceURL is the protected resource URL that discovery probes.
	ResourceURL string `yaml:"resourceUrl,omitempty"`

	// CallbackPort is the local port for the redirect listener.
	CallbackPort int `yaml:"callbackPort,omitempty"`

	// ClientName is the name declared during dynamic client registration.
	ClientName string `yaml:"clientName,omitempty"`

	// CredentialFile is the path of the KEY=value credential file.
	CredentialFile string `yaml:"credentialFile,omitempty"`

	// AuthTimeoutSeconds overrides the authorization callback wait bound.
	// Zero means DefaultAuthTimeout.
	AuthTimeoutSeconds int `yaml:"authTimeoutSeconds,omitempty"`

	// AuthTimeout bounds the wait for the authorization callback. Derived
	// from AuthTimeoutSeconds when the config file sets it.
	AuthTimeout time.Duration `yaml:"-"`
}

// RedirectURI returns the fixed local redirect URI derived from the callback
// port. This exact value is sent in registration, authorization, and exchange
// requests; all three must agree.
func (c Config) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", c.CallbackPort)
}

// DefaultConfigDir returns the directory holding config.yaml and the default
// credential file.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Default returns the built-in configuration.
func Default() (Config, error) {
	configDir, err := DefaultConfigDir()
	if err != nil {
		return Config{}, err
	}

	return Config{
		ResourceURL:    DefaultResourceURL,
		CallbackPort:   DefaultCallbackPort,
		ClientName:     DefaultClientName,
		CredentialFile: filepath.Join(configDir, credentialFileName),
		AuthTimeout:    DefaultAuthTimeout,
	}, nil
}

// Load loads configuration from the given directory, falling back to defaults
// when no config.yaml exists there. An empty configPath means the default
// config directory.
func Load(configPath string) (Config, error) {
	config, err := Default()
	if err != nil {
		return Config{}, err
	}

	if configPath == "" {
		configPath, err = DefaultConfigDir()
		if err != nil {
			return Config{}, err
		}
	}

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	if config.AuthTimeoutSeconds > 0 {
		config.AuthTimeout = time.Duration(config.AuthTimeoutSeconds) * time.Second
	}

	logging.Debug("Config", "Loaded configuration from %s", configFilePath)
	return config, nil
}

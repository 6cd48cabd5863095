package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/photofeed/internal/auth"
	"github.com/florianilch/photofeed/internal/feed"
	"github.com/florianilch/photofeed/internal/observability"
	"github.com/florianilch/photofeed/internal/photoapi"
	"github.com/florianilch/photofeed/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for the bearer token.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeMemory  TokenStorageType = "memory"
)

// keyringService names the keyring entry holding the token.
const keyringService = "photofeed-token"

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigTelemetryExporter = observability.ExporterNone
	DefaultConfigAPIBaseURL        = photoapi.DefaultBaseURL
	DefaultConfigAPIPerPage        = feed.DefaultPerPage
	DefaultConfigAPITimeout        = 30 * time.Second
	DefaultConfigOAuthRedirectURI  = auth.OutOfBandRedirectURI
	DefaultConfigAuthStorage       = TokenStorageTypeFile
	DefaultConfigLoginTimeout      = 5 * time.Minute
	DefaultConfigShutdownTimeout   = 5 * time.Second
)

// DefaultConfigOAuthScopes are requested when no scopes are configured.
var DefaultConfigOAuthScopes = auth.DefaultScopes

// TelemetryConfig selects where logs are exported.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Endpoint string                 `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// APIConfig holds photo API settings.
type APIConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url"`
	PerPage int           `json:"per_page" validate:"min=1,max=30"`
	Timeout time.Duration `json:"timeout"`
}

// OAuthConfig describes the registered OAuth2 application.
type OAuthConfig struct {
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url" validate:"required,url"`
	TokenURL     string   `json:"token_url" validate:"required,url"`
	RedirectURI  string   `json:"redirect_uri" validate:"required"`
	Scopes       []string `json:"scopes" validate:"min=1,dive,required"`
}

// AuthConfig describes where the bearer token is stored.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file keyring memory"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
	case TokenStorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for flushing logs and stopping the callback server.
	Timeout time.Duration `json:"timeout"`
}

// LoginConfig holds interactive sign-in settings.
type LoginConfig struct {
	// Timeout bounds the wait for the authorization redirect.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	API       APIConfig       `json:"api"`
	OAuth     OAuthConfig     `json:"oauth"`
	Auth      AuthConfig      `json:"auth"`
	Login     LoginConfig     `json:"login"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.PerPage == 0 {
		c.API.PerPage = DefaultConfigAPIPerPage
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.OAuth.AuthURL == "" {
		c.OAuth.AuthURL = auth.Endpoint.AuthURL
	}
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = auth.Endpoint.TokenURL
	}
	if c.OAuth.RedirectURI == "" {
		c.OAuth.RedirectURI = DefaultConfigOAuthRedirectURI
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = append([]string(nil), DefaultConfigOAuthScopes...)
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultConfigLoginTimeout
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "photofeed", "token")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeMemory:
		// nothing to locate
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	if c.Telemetry.Exporter == observability.ExporterNone && c.Telemetry.Endpoint != "" {
		return errors.New("telemetry.endpoint requires an exporter")
	}

	return nil
}

// authConfig converts the OAuth section into an auth.Config.
func (c *Config) authConfig() auth.Config {
	endpoint := auth.Endpoint
	endpoint.AuthURL = c.OAuth.AuthURL
	endpoint.TokenURL = c.OAuth.TokenURL

	return auth.Config{
		ClientID:     c.OAuth.ClientID,
		ClientSecret: c.OAuth.ClientSecret,
		RedirectURI:  c.OAuth.RedirectURI,
		Scopes:       c.OAuth.Scopes,
		Endpoint:     endpoint,
	}
}

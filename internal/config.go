package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdgraph/internal/graphstore"
	"github.com/starford/mdgraph/internal/session"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Graph drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Graph GraphConfig       `yaml:"graph"`
	Vault VaultConfig       `yaml:"vault"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. The server only runs under
// `serve` and only when enabled.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.When(c.Enabled, validation.Required), validation.Min(0), validation.Max(65535)),
	)
}

// GraphConfig selects and addresses the graph store.
type GraphConfig struct {
	Driver         string `yaml:"driver"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Dialect        string `yaml:"dialect"`
	SQLitePath     string `yaml:"sqlite_path"`
	PruneOrphans   bool   `yaml:"prune_orphans"`
	ConnectRetries int    `yaml:"connect_retries"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverBolt, DriverSQLite)),
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Dialect, validation.When(c.Driver == DriverBolt,
			validation.In(string(graphstore.DialectMemgraph), string(graphstore.DialectNeo4j)))),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == DriverSQLite, validation.Required)),
		validation.Field(&c.ConnectRetries, validation.Min(0)),
	)
}

// Target is the host and port the session connects to at startup.
func (c *GraphConfig) Target() session.Target {
	return session.Target{Host: c.Host, Port: c.Port}
}

// Dialer builds the session dialer for the configured driver.
func (c *GraphConfig) Dialer(log *slog.Logger) session.Dialer {
	if c.Driver == DriverSQLite {
		return session.SQLiteDialer(c.SQLitePath)
	}
	return session.BoltDialer(graphstore.BoltConfig{
		Username: c.Username,
		Password: c.Password,
		Dialect:  graphstore.Dialect(c.Dialect),
	}, log)
}

// VaultConfig points at the Markdown notes directory. An empty path means
// notes arrive only over the bridge.
type VaultConfig struct {
	Path      string `yaml:"path"`
	Watch     bool   `yaml:"watch"`
	CacheSize int    `yaml:"cache_size"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Watch, validation.Required.Error("is required when watch is enabled"))),
		validation.Field(&c.CacheSize, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Graph: GraphConfig{
			Driver:         DriverBolt,
			Host:           "localhost",
			Port:           7687,
			Dialect:        string(graphstore.DialectMemgraph),
			SQLitePath:     "./mdgraph.db",
			ConnectRetries: 3,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

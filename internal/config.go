package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/rocache/internal/scanner"
	"github.com/starford/rocache/internal/storage"
	"github.com/starford/rocache/internal/validator"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Scan      ScanConfig        `yaml:"scan"`
	Cache     CacheConfig       `yaml:"cache"`
	Validator ValidatorConfig   `yaml:"validator"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Validator.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ScanConfig controls where crates are looked for.
type ScanConfig struct {
	Root   string   `yaml:"root"`
	Ignore []string `yaml:"ignore"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// CacheConfig holds the cache directory. An empty Dir means the per-user
// cache directory.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// Validate resolves the default cache directory when none is set.
func (c *CacheConfig) Validate() error {
	if c.Dir != "" {
		return nil
	}
	dir, err := storage.DefaultDir()
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	c.Dir = dir
	return nil
}

// ValidatorConfig describes the external crate validator.
type ValidatorConfig struct {
	ToolDir        string        `yaml:"tool_dir"`
	Command        []string      `yaml:"command"`
	InstallCommand []string      `yaml:"install_command"`
	Timeout        time.Duration `yaml:"timeout"`
	Concurrency    int           `yaml:"concurrency"`
	SkipInstall    bool          `yaml:"skip_install"`
}

// Validate validates the validator configuration.
func (c *ValidatorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ToolDir, validation.Required),
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// CommandConfig converts c into the validator's command settings.
func (c *ValidatorConfig) CommandConfig(logger *slog.Logger) validator.CommandConfig {
	return validator.CommandConfig{
		ToolDir:        c.ToolDir,
		Command:        c.Command,
		InstallCommand: c.InstallCommand,
		Timeout:        c.Timeout,
		Logger:         logger,
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Scan: ScanConfig{
			Root:   ".",
			Ignore: append([]string(nil), scanner.DefaultIgnore...),
		},
		Validator: ValidatorConfig{
			ToolDir:        "./rocrate-validator",
			Command:        append([]string(nil), validator.DefaultCommand...),
			InstallCommand: append([]string(nil), validator.DefaultInstallCommand...),
			Timeout:        validator.DefaultTimeout,
			Concurrency:    1,
		},
		SQLite: SQLiteConfig{
			Path: "./rocache.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

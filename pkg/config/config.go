// Package config loads and validates the server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (INKVAULT_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inkvault/inkvault/internal/bytesize"
	"github.com/inkvault/inkvault/pkg/api"
	"github.com/inkvault/inkvault/pkg/inference"
	"github.com/inkvault/inkvault/pkg/processor"
	"github.com/inkvault/inkvault/pkg/store"
	"github.com/inkvault/inkvault/pkg/userservice"
)

// Config is the complete server configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout bounds graceful shutdown: HTTP drain first, then
	// the processing pipeline.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the metadata store (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// HTTP configures the API server.
	HTTP api.Config `mapstructure:"http" yaml:"http"`

	// Storage configures the blob root and the per-user quota.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Signer configures signed upload/download URLs.
	Signer SignerConfig `mapstructure:"signer" yaml:"signer"`

	// Sync configures device sync leases.
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Users configures registration and web sessions.
	Users userservice.Config `mapstructure:"users" yaml:"users"`

	// Processor configures the content pipeline worker pool.
	Processor processor.Config `mapstructure:"processor" yaml:"processor"`

	// Inference configures the embedding/OCR/summary backend. Leaving
	// BaseURL empty disables the pipeline stages that need it.
	Inference inference.Config `mapstructure:"inference" yaml:"inference"`

	// Metrics toggles Prometheus instrumentation and /metrics.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs go: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StorageConfig configures blob storage.
type StorageConfig struct {
	// Root is the storage root; blobs land under <Root>/blobs.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// Allocation is the advertised per-user quota. Human-readable
	// sizes like "10Gi" or "500MB" are accepted.
	// Default: 10Gi
	Allocation bytesize.ByteSize `mapstructure:"allocation" yaml:"allocation,omitempty"`
}

// SignerConfig configures the URL signer.
type SignerConfig struct {
	// Secret is the HMAC key for signed URLs. Required; there is no
	// safe default.
	Secret string `mapstructure:"secret" validate:"required,min=16" yaml:"secret"`

	// MaxAge is how long a signed URL stays valid.
	// Default: 15m
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// SyncConfig configures device sync sessions.
type SyncConfig struct {
	// LeaseTTL is how long an idle sync lease survives before another
	// equipment may take over.
	// Default: 5m
	LeaseTTL time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls instrumentation and the /metrics endpoint.
	// Default: true
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`
}

// IsEnabled reports whether metrics are on. Defaults to true.
func (c *MetricsConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with a user-friendly error when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  inkvault init\n\n"+
				"Or specify a custom config file:\n"+
				"  inkvault <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  inkvault init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path in YAML. The file gets
// 0600 permissions since it carries the signer and JWT secrets.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file search.
// Environment variables use the INKVAULT_ prefix with underscores, e.g.
// INKVAULT_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("INKVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is not an error; defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the custom decode hooks: ByteSize and
// time.Duration parsing from human-readable strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: XDG_CONFIG_HOME if
// set, otherwise ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "inkvault")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "inkvault")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (for the init command).
func GetConfigDir() string {
	return getConfigDir()
}

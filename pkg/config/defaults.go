package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/inkvault/inkvault/internal/bytesize"
	"github.com/inkvault/inkvault/pkg/fileservice"
	"github.com/inkvault/inkvault/pkg/signer"
	"github.com/inkvault/inkvault/pkg/syncsvc"
)

// ApplyDefaults fills in missing configuration with default values.
// Sections owned by other packages delegate to their ApplyDefaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	cfg.Database.ApplyDefaults()
	cfg.HTTP.ApplyDefaults()
	cfg.Processor.ApplyDefaults()
	cfg.Inference.ApplyDefaults()

	applyStorageDefaults(&cfg.Storage)
	if cfg.Signer.MaxAge == 0 {
		cfg.Signer.MaxAge = signer.DefaultMaxAge
	}
	if cfg.Sync.LeaseTTL == 0 {
		cfg.Sync.LeaseTTL = syncsvc.DefaultLeaseTTL
	}
}

// applyStorageDefaults points the blob root at the XDG data directory
// and sets the stock quota.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			cfg.Root = filepath.Join(xdgData, "inkvault")
		} else if home, err := os.UserHomeDir(); err == nil {
			cfg.Root = filepath.Join(home, ".local", "share", "inkvault")
		} else {
			cfg.Root = "."
		}
	}
	if cfg.Allocation == 0 {
		cfg.Allocation = bytesize.ByteSize(fileservice.DefaultAllocation)
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// GetDefaultConfig returns a configuration with every default applied.
// The signer secret stays empty; init generates one.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

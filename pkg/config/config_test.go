package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkvault/inkvault/internal/bytesize"
	"github.com/inkvault/inkvault/pkg/store"
)

// validConfig returns a configuration that passes validation.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := GetDefaultConfig()
	cfg.Storage.Root = t.TempDir()
	cfg.Signer.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Users.JWTSecret = "another-secret-for-jwt"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "inkvault.db")
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format text, got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("expected default database type sqlite, got %q", cfg.Database.Type)
	}
	if cfg.Storage.Allocation != bytesize.ByteSize(10<<30) {
		t.Errorf("expected default allocation 10Gi, got %d", cfg.Storage.Allocation)
	}
	if cfg.Signer.MaxAge != 15*time.Minute {
		t.Errorf("expected default signed URL max age 15m, got %v", cfg.Signer.MaxAge)
	}
	if cfg.Sync.LeaseTTL != 5*time.Minute {
		t.Errorf("expected default sync lease TTL 5m, got %v", cfg.Sync.LeaseTTL)
	}
	if cfg.Processor.Concurrency <= 0 {
		t.Errorf("expected positive default processor concurrency, got %d", cfg.Processor.Concurrency)
	}
	if !cfg.Metrics.IsEnabled() {
		t.Error("expected metrics enabled by default")
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		if err := Validate(validConfig(t)); err != nil {
			t.Errorf("expected valid config to pass validation, got: %v", err)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Logging.Level = "LOUD"
		err := Validate(cfg)
		if err == nil {
			t.Fatal("expected validation error for invalid log level")
		}
		if !strings.Contains(err.Error(), "oneof") {
			t.Errorf("expected 'oneof' validation error, got: %v", err)
		}
	})

	t.Run("port out of range", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.HTTP.Port = 70000
		if err := Validate(cfg); err == nil {
			t.Fatal("expected validation error for port out of range")
		}
	})

	t.Run("short signer secret", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Signer.Secret = "short"
		if err := Validate(cfg); err == nil {
			t.Fatal("expected validation error for short signer secret")
		}
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Users.JWTSecret = ""
		err := Validate(cfg)
		if err == nil {
			t.Fatal("expected validation error for missing jwt secret")
		}
		if !strings.Contains(err.Error(), "jwt_secret") {
			t.Errorf("expected jwt_secret in error, got: %v", err)
		}
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: DEBUG
  format: json
shutdown_timeout: 45s
database:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "inkvault.db") + `
storage:
  root: ` + dir + `
  allocation: 2Gi
signer:
  secret: 0123456789abcdef0123456789abcdef
  max_age: 10m
users:
  registration_enabled: true
  jwt_secret: test-jwt-secret-value
http:
  port: 9999
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("expected shutdown timeout 45s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Storage.Allocation != bytesize.ByteSize(2<<30) {
		t.Errorf("expected allocation 2Gi, got %d", cfg.Storage.Allocation)
	}
	if cfg.Signer.MaxAge != 10*time.Minute {
		t.Errorf("expected signer max age 10m, got %v", cfg.Signer.MaxAge)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.HTTP.Port)
	}
	if !cfg.Users.RegistrationEnabled {
		t.Error("expected registration enabled")
	}
	// Unset sections still get defaults.
	if cfg.Sync.LeaseTTL != 5*time.Minute {
		t.Errorf("expected default sync lease TTL, got %v", cfg.Sync.LeaseTTL)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default level INFO, got %q", cfg.Logging.Level)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := validConfig(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after save failed: %v", err)
	}
	if loaded.Signer.Secret != cfg.Signer.Secret {
		t.Error("signer secret did not survive the round trip")
	}
	if loaded.Storage.Root != cfg.Storage.Root {
		t.Error("storage root did not survive the round trip")
	}
}

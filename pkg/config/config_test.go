package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"small capacity", func(c *Config) { c.Filters.InitialCapacity = 10000 }},
		{"zero probability", func(c *Config) { c.Filters.DefaultProbability = 0 }},
		{"high probability", func(c *Config) { c.Filters.DefaultProbability = 0.1 }},
		{"scale size", func(c *Config) { c.Filters.ScaleSize = 3 }},
		{"steep reduction", func(c *Config) { c.Filters.ProbabilityReduction = 0.1 }},
		{"reduction of one", func(c *Config) { c.Filters.ProbabilityReduction = 1 }},
		{"negative flush", func(c *Config) { c.Background.FlushInterval = -time.Second }},
		{"negative cold", func(c *Config) { c.Background.ColdInterval = -time.Second }},
		{"no workers", func(c *Config) { c.Server.Workers = 0 }},
		{"log level", func(c *Config) { c.Logger.Level = "LOUD" }},
		{"vacuum queue", func(c *Config) { c.Vacuum.QueueSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.DataDir = t.TempDir()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateDataDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Storage.DataDir = path
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected error for file data dir, got %v", err)
	}
}

func TestValidateCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	cfg := Default()
	cfg.Storage.DataDir = dir
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "PERMTEST")); !os.IsNotExist(err) {
		t.Fatalf("permission test file left behind: %v", err)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	raw := []byte(`
logger:
  level: DEBUG
  json: true
filters:
  initial_capacity: 200000
  scale_size: 2
vacuum:
  grace_period: 10ms
`)
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !cfg.Logger.JSON || cfg.Logger.Level != "DEBUG" {
		t.Fatalf("logger not overridden: %+v", cfg.Logger)
	}
	if cfg.Filters.InitialCapacity != 200000 || cfg.Filters.ScaleSize != 2 {
		t.Fatalf("filters not overridden: %+v", cfg.Filters)
	}
	if cfg.Filters.DefaultProbability != 1e-4 {
		t.Fatalf("untouched default lost: %v", cfg.Filters.DefaultProbability)
	}
	if cfg.Vacuum.GracePeriod != 10*time.Millisecond {
		t.Fatalf("grace period = %v", cfg.Vacuum.GracePeriod)
	}
}

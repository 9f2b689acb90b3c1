package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"bloomd/pkg/bloom"
	"bloomd/pkg/config"
	"bloomd/pkg/filter"
)

// initConfig reads YAML on top of config.Default(). A missing file means
// defaults.
func initConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// initLogger installs the global slog.Logger, JSON or text.
func initLogger(cfg *config.Config) error {
	level, err := config.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
	return nil
}

func filterDefaults(cfg config.FilterConfig) filter.Config {
	return filter.Config{
		Params: bloom.Params{
			InitialCapacity:      cfg.InitialCapacity,
			Probability:          cfg.DefaultProbability,
			ScaleSize:            cfg.ScaleSize,
			ProbabilityReduction: cfg.ProbabilityReduction,
		},
		InMemory: cfg.InMemory,
	}
}

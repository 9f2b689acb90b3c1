package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidConfig = errors.New("bloomd: invalid config")

// Validate checks every section and returns all problems at once.
// Suspicious but legal values are only logged.
func (c *Config) Validate() error {
	var errs []error

	if err := checkDataDir(c.Storage.DataDir); err != nil {
		errs = append(errs, err)
	}

	if _, err := ParseLevel(c.Logger.Level); err != nil {
		errs = append(errs, err)
	}

	f := c.Filters
	switch {
	case f.InitialCapacity <= 10000:
		errs = append(errs, fmt.Errorf("%w: initial capacity cannot be less than 10K", ErrInvalidConfig))
	case f.InitialCapacity > 1_000_000_000:
		slog.Warn("initial capacity set very high", "initial_capacity", f.InitialCapacity)
	}

	switch p := f.DefaultProbability; {
	case p <= 0:
		errs = append(errs, fmt.Errorf("%w: probability must be positive", ErrInvalidConfig))
	case p >= 0.1:
		errs = append(errs, fmt.Errorf("%w: default probability too high", ErrInvalidConfig))
	case p > 0.01:
		slog.Warn("default probability very high", "probability", p)
	}

	if f.ScaleSize != 2 && f.ScaleSize != 4 {
		errs = append(errs, fmt.Errorf("%w: scale size must be 2 or 4", ErrInvalidConfig))
	}

	switch r := f.ProbabilityReduction; {
	case r >= 1:
		errs = append(errs, fmt.Errorf("%w: probability reduction must be below 1", ErrInvalidConfig))
	case r <= 0.1:
		errs = append(errs, fmt.Errorf("%w: probability drop off is set too steep", ErrInvalidConfig))
	case r <= 0.5:
		slog.Warn("probability drop off is very steep", "reduction", r)
	}

	b := c.Background
	switch {
	case b.FlushInterval < 0:
		errs = append(errs, fmt.Errorf("%w: flush interval cannot be negative", ErrInvalidConfig))
	case b.FlushInterval == 0:
		slog.Warn("flushing is disabled, increased risk of data loss")
	}
	switch {
	case b.ColdInterval < 0:
		errs = append(errs, fmt.Errorf("%w: cold interval cannot be negative", ErrInvalidConfig))
	case b.ColdInterval == 0:
		slog.Warn("cold filter unmapping is disabled")
	}
	if b.FlushConcurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: flush concurrency must be at least 1", ErrInvalidConfig))
	}

	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: cannot have fewer than one worker", ErrInvalidConfig))
	}
	if c.Server.TCPPort < 1 || c.Server.TCPPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: bad tcp port %d", ErrInvalidConfig, c.Server.TCPPort))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: bad http port %d", ErrInvalidConfig, c.HTTP.Port))
	}

	if c.Vacuum.GracePeriod < 0 || c.Vacuum.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: vacuum intervals cannot be negative", ErrInvalidConfig))
	}
	if c.Vacuum.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("%w: vacuum queue size must be at least 1", ErrInvalidConfig))
	}

	if len(c.Discovery.ZKServers) > 0 && !strings.HasPrefix(c.Discovery.RootPath, "/") {
		errs = append(errs, fmt.Errorf("%w: discovery root path must be absolute", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// ParseLevel maps a config log level onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
}

func checkDataDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: data dir is empty", ErrInvalidConfig)
	}

	st, err := os.Stat(dir)
	switch {
	case err == nil && !st.IsDir():
		return fmt.Errorf("%w: data dir %s is not a directory", ErrInvalidConfig, dir)
	case err != nil:
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return fmt.Errorf("%w: make data dir: %w", ErrInvalidConfig, err)
		}
	}

	permFile := filepath.Join(dir, "PERMTEST")
	fh, err := os.OpenFile(permFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: data dir is not writable: %w", ErrInvalidConfig, err)
	}
	_ = fh.Close()
	_ = os.Remove(permFile)

	return nil
}

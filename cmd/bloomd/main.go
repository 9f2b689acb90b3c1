package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	bhttp "bloomd/internal/http"
	"bloomd/internal/protocol"
	"bloomd/internal/server"
	"bloomd/pkg/background"
	"bloomd/pkg/config"
	"bloomd/pkg/discovery"
	"bloomd/pkg/listener"
	"bloomd/pkg/registry"
	"bloomd/pkg/vacuum"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "bloomd",
		Short:         "Network server for named scalable bloom filters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := initConfig(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed to load config:", err)
				return err
			}
			if err := initLogger(&cfg); err != nil {
				fmt.Fprintln(os.Stderr, "failed to init logger:", err)
				return err
			}
			if err := cfg.Validate(); err != nil {
				slog.Error("invalid config", "error", err)
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, cfg); err != nil {
				slog.Error("bloomd failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "f", "", "path to the YAML config file")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	slog.Info("bloomd starting", "data_dir", cfg.Storage.DataDir)

	reg := registry.New(registry.Options{
		DataDir:          cfg.Storage.DataDir,
		Defaults:         filterDefaults(cfg.Filters),
		QueueSize:        cfg.Vacuum.QueueSize,
		FlushConcurrency: cfg.Background.FlushConcurrency,
	})
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load filters: %w", err)
	}

	vac := vacuum.New(reg.Deleted(), reg, cfg.Vacuum)
	flusher := background.NewFlusher(reg, cfg.Background.FlushInterval)
	unmapper := background.NewUnmapper(reg, cfg.Background.ColdInterval)
	jobs := []listener.Job{vac, flusher, unmapper}
	for _, job := range jobs {
		job.Start(ctx)
	}

	addr := net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.TCPPort))
	tcp := server.NewServer(protocol.NewExecutor(reg), addr, cfg.Server.Workers)
	if err := tcp.Start(ctx); err != nil {
		_ = stopWorkers(jobs, reg)
		return err
	}

	var admin *bhttp.Server
	if cfg.HTTP.Port > 0 {
		admin = bhttp.NewServer(reg, cfg.HTTP)
		if err := admin.Start(); err != nil {
			slog.Error("failed to start HTTP server", "error", err)
			admin = nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var membership *discovery.Membership
	if len(cfg.Discovery.ZKServers) > 0 {
		m, err := discovery.New(cfg.Discovery)
		if err != nil {
			slog.Error("discovery disabled", "error", err)
		} else if err := m.Register(gctx); err != nil {
			slog.Error("discovery disabled", "error", err)
			_ = m.Close()
		} else {
			membership = m
			g.Go(func() error {
				membership.Watch(gctx)
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	_ = g.Wait()

	slog.Info("bloomd shutting down")
	if membership != nil {
		_ = membership.Close()
	}
	if admin != nil {
		if err := admin.Stop(); err != nil {
			slog.Error("error stopping HTTP server", "error", err)
		}
	}
	if err := tcp.Stop(); err != nil {
		slog.Error("error stopping TCP server", "error", err)
	}
	err := stopWorkers(jobs, reg)

	slog.Info("bloomd stopped")
	return err
}

// stopWorkers stops background jobs in reverse start order, then closes
// every filter.
func stopWorkers(jobs []listener.Job, reg *registry.Registry) error {
	for i := len(jobs) - 1; i >= 0; i-- {
		jobs[i].Stop()
	}
	if err := reg.Shutdown(); err != nil {
		return fmt.Errorf("shutdown registry: %w", err)
	}
	return nil
}

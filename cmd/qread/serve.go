// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/qread/qread/internal/config"
	"github.com/qread/qread/internal/jobs"
	"github.com/qread/qread/internal/logging"
	"github.com/qread/qread/internal/observability"
	"github.com/qread/qread/internal/store"
	"github.com/qread/qread/internal/web"
)

const serviceName = "qread"

// serveConfig holds flags that are not part of the config file.
type serveConfig struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API together with the metrics and health server and,
for the in-memory cache, the expired-secret janitor.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().String("http-addr", "", "HTTP API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (empty keeps accounts in memory)")
	cmd.Flags().BoolVar(&cfg.autoMigrate, "auto-migrate", false, "apply pending migrations before serving")

	return cmd
}

func runServe(cmd *cobra.Command, sc *serveConfig) error {
	cfg, err := config.Load(config.ResolvePath(configFile), cmd.Flags())
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, level)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if sc.autoMigrate {
		if err := migrateUp(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	var (
		obsServer *observability.Server
		metrics   *observability.AuthMetrics
		comps     *components
	)
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func(ctx context.Context) error {
			if comps == nil {
				return oops.Errorf("starting")
			}
			return comps.ready(ctx)
		}, logger)
		metrics = obsServer.Metrics()
	}

	comps, err = newComponents(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	api, err := web.NewServer(cfg.HTTP, web.Deps{
		Auth:      comps.auth,
		Provision: comps.provision,
		Admin:     comps.admin,
		Accounts:  comps.accounts,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		comps.close(context.Background(), logger)
		return err
	}

	var janitor *jobs.Janitor
	if comps.memCache != nil {
		if janitor, err = jobs.NewJanitor(cfg.Cache.SweepSchedule, comps.memCache, logger); err != nil {
			comps.close(context.Background(), logger)
			return err
		}
		janitor.Start()
	}

	errChan := make(chan error, 2)
	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopAll(cfg, logger, nil, janitor, comps, nil)
			return err
		}
		go forwardErrors(ctx, obsErrChan, errChan)
	}
	go func() {
		if err := api.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("QRead started")
	logger.Info("qread ready", "http_addr", cfg.HTTP.Addr, "metrics_addr", cfg.Metrics.Addr)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr = <-errChan:
		logger.Error("server failed, shutting down", "error", serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopAll(cfg, logger, api, janitor, comps, obsServer)
	return serveErr
}

func forwardErrors(ctx context.Context, from <-chan error, to chan<- error) {
	select {
	case err, ok := <-from:
		if ok && err != nil {
			to <- err
		}
	case <-ctx.Done():
	}
}

// stopAll shuts down in dependency order: stop taking requests, stop the
// janitor, drain mail, then close health reporting and connections.
func stopAll(cfg *config.Config, logger *slog.Logger, api *web.Server, janitor *jobs.Janitor, comps *components, obsServer *observability.Server) {
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if api != nil {
		if err := api.Shutdown(ctx); err != nil {
			logger.Warn("error stopping http server", "error", err)
		}
	}
	if janitor != nil {
		if err := janitor.Stop(ctx); err != nil {
			logger.Warn("error stopping janitor", "error", err)
		}
	}
	comps.drainMail(ctx, logger)
	if obsServer != nil {
		if err := obsServer.Stop(ctx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	comps.release(logger)
	logger.Info("shutdown complete")
}

// migrateUp applies pending migrations to databaseURL.
func migrateUp(databaseURL string) error {
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--auto-migrate needs a database url")
	}
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

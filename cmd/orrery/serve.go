package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orrery-dev/orrery/internal/config"
	"github.com/orrery-dev/orrery/pkg/astro"
	"github.com/orrery-dev/orrery/pkg/export"
	"github.com/orrery-dev/orrery/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		listen     string
		database   string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the subjects API server",
		Long: `Start the subjects API server.

Configuration is read from orrery.json in the working directory,
with command-line flags taking precedence.

Examples:
  orrery serve
  orrery serve --listen=0.0.0.0:8080
  orrery serve --config=/etc/orrery/orrery.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), listen, database, configPath)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to bind to (default from orrery.json)")
	cmd.Flags().StringVarP(&database, "database", "d", "", "SQLite database path (default from orrery.json)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (default ./orrery.json)")

	return cmd
}

func runServe(ctx context.Context, listen, database, configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return err
	}

	if listen != "" {
		cfg.Listen = listen
	}
	if database != "" {
		cfg.Database = database
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	store, err := server.OpenStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database, err)
	}
	defer store.Close()

	serverCfg := server.Config{
		Store:         store,
		Logger:        logger,
		WriteRate:     cfg.WriteRate,
		WriteBurst:    cfg.WriteBurst,
		EnableMetrics: cfg.Metrics,
		EnableTracing: cfg.Tracing,
	}

	if cfg.ExportsEnabled() {
		serverCfg.Astro = astro.NewClient(cfg.Astro.BaseURL, cfg.Astro.APIKey)
		exports, err := export.NewS3StoreFromEnv(ctx, cfg.Exports.Bucket, cfg.Exports.Prefix)
		if err != nil {
			return fmt.Errorf("configure exports: %w", err)
		}
		serverCfg.Exports = exports
		logger.Info("chart exports enabled", "bucket", cfg.Exports.Bucket)
	} else {
		logger.Info("chart exports disabled")
	}

	srv := server.New(serverCfg)
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "database", cfg.Database)
		errs <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

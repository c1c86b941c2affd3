package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"file-transfer-testserver/internal/catalog"
	"file-transfer-testserver/internal/config"
	"file-transfer-testserver/internal/discovery"
	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/server"
	"file-transfer-testserver/internal/storage"
	"file-transfer-testserver/internal/thumbnail"
)

const shutdownTimeout = 5 * time.Second

func serveCommand(cmd *cobra.Command, v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	for _, w := range config.Warnings(cfg) {
		logger.Info("config_warning", logging.Fields{"warning": w})
	}

	// Shut down gracefully on SIGINT (Ctrl+C) or SIGTERM (container stop).
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return run(ctx, cfg, logger, ln)
}

// run serves on ln until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, ln net.Listener) error {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}

	policy, err := storage.ParseCollisionPolicy(cfg.Storage.Collision)
	if err != nil {
		_ = ln.Close()
		return err
	}

	deps := server.Deps{
		Saver:   &storage.Saver{Backend: backend, Policy: policy},
		Logger:  logger,
		Metrics: server.NewMetrics(),
	}
	if cfg.Thumbnails.Enabled {
		deps.Thumbnails = thumbnail.NewImaging(cfg.Thumbnails.Width, cfg.Thumbnails.Height)
	}

	if cfg.DatabaseURL != "" {
		db, err := catalog.OpenDB(cfg.DatabaseURL)
		if err != nil {
			logger.Error("db_connect_failed", nil, err)
			_ = ln.Close()
			return err
		}
		defer func() { _ = db.Close() }()

		logger.Info("running_migrations", nil)
		if err := catalog.RunMigrations(db); err != nil {
			logger.Error("migration_failed", nil, err)
			_ = ln.Close()
			return err
		}
		logger.Info("migrations_complete", nil)
		deps.Catalog = catalog.NewPostgres(db)
	}

	srv, err := server.New(server.Config{
		Addr:           cfg.Addr,
		StaticDir:      cfg.StaticDir,
		Field:          cfg.FormField,
		Version:        cfg.Version,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Compression:    cfg.Compression,
	}, deps)
	if err != nil {
		_ = ln.Close()
		return err
	}

	if cfg.MDNS.Enabled {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			shutdown, err := discovery.Announce(ctx, discovery.Options{
				Instance: cfg.MDNS.Instance,
				Port:     tcp.Port,
				Field:    cfg.FormField,
				Version:  cfg.Version,
			})
			if err != nil {
				logger.Warn("mdns_announce_failed", logging.Fields{"error": err.Error()})
			} else {
				defer shutdown()
				logger.Info("mdns_announced", logging.Fields{"service": discovery.Service, "port": tcp.Port})
			}
		}
	}

	// Start the HTTP server in a background goroutine so we can wait for ctx.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting", logging.Fields{"addr": ln.Addr().String(), "version": cfg.Version, "commit": cfg.Commit})
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting_down", logging.Fields{"reason": context.Cause(ctx).Error()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown_error", nil, err)
			return err
		}
		logger.Info("shutdown_complete", nil)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", nil, err)
			return err
		}
		return nil
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewMinioBackend(ctx, storage.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
		})
	case "disk", "":
		return storage.NewDiskBackend(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/pdfviewer/internal/backend"
	"github.com/italolelis/pdfviewer/internal/config"
	"github.com/italolelis/pdfviewer/internal/filestore"
	"github.com/italolelis/pdfviewer/internal/filestore/local"
	"github.com/italolelis/pdfviewer/internal/filestore/minio"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/italolelis/pdfviewer/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.New(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("pdf backend starting...", "log_level", cfg.LogLevel, "storage", cfg.Storage)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.BackendConfig) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Storage
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build storage: %w", err)
	}

	// =========================================================================
	// Start API Service
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Mount("/", backend.NewFilesHandler(store, cfg.APIKey, cfg.CORSOrigins).Routes())

	server := &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving files api", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

// This is an abstract factory for the file store.
func buildStore(ctx context.Context, cfg *config.BackendConfig) (filestore.Store, error) {
	switch cfg.Storage {
	case "local":
		return local.New(cfg.StorageDir)
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.Minio.Prefix,
		})
	}

	return nil, fmt.Errorf("invalid storage: %s", cfg.Storage)
}

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
	"github.com/italolelis/pdfviewer/internal/api"
	"github.com/italolelis/pdfviewer/internal/blob"
	"github.com/italolelis/pdfviewer/internal/config"
	"github.com/italolelis/pdfviewer/internal/http/rest"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/italolelis/pdfviewer/internal/telemetry"
	"github.com/italolelis/pdfviewer/internal/viewer"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadViewer()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.New(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("pdf viewer starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ViewerConfig) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "pdfviewer",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// =========================================================================
	// Start Backend Client
	var opts []api.Option
	if cfg.APIBearerToken != "" {
		opts = append(opts, api.WithBearerToken(cfg.APIBearerToken))
	}

	client, err := api.New(cfg.APIBaseURL, cfg.APIKey, opts...)
	if err != nil {
		return fmt.Errorf("failed to build backend client: %w", err)
	}

	// =========================================================================
	// Start Coordinator
	store := blob.NewStore(tel)
	coord := viewer.NewCoordinator(api.NewInstrumentedClient(client, tel), store, tel)
	hub := rest.NewHub(tel)
	handler := rest.NewViewerHandler(ctx, coord, store, hub)

	go coord.LoadFiles(ctx)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, handler, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving viewer", "host", cfg.Web.BindAddress, "backend", cfg.APIBaseURL)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		hub.Close()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		// After a forced Close handlers may still be running; Close gates new actions.
		handler.Close()
		coord.Close(shutdownCtx)

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}

		return nil
	})

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, handler *rest.ViewerHandler, tel *telemetry.Telemetry, cfg *config.ViewerConfig) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/health", rest.HandleHealth)
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/starford/rocache/internal/api"
	"github.com/starford/rocache/internal/crateservice"
	"github.com/starford/rocache/internal/index"
	"github.com/starford/rocache/internal/manager"
	"github.com/starford/rocache/internal/metrics"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/sse"
	"github.com/starford/rocache/internal/storage"
	"github.com/starford/rocache/internal/validator"
)

// newLogger builds the process logger: JSON by default, tint when the
// configured format is text.
func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	if cfg.LogFormat == LogFormatText {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}

// runtime holds the components shared by the serve, scan and mcp modes.
type runtime struct {
	logger  *slog.Logger
	store   *storage.FS
	db      *index.DB
	mgr     *manager.Manager
	svc     *crateservice.Service
	metrics *metrics.Metrics
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

// newRuntime wires store, validator, manager, index and service. listeners
// run after every saved update.
func newRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, listeners ...manager.UpdateFunc) (*runtime, error) {
	store, err := storage.NewFS(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	cmd, err := validator.NewCommand(cfg.Validator.CommandConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}
	if !cfg.Validator.SkipInstall {
		if err := cmd.InstallDependencies(ctx); err != nil {
			return nil, fmt.Errorf("install validator: %w", err)
		}
	}
	v := validator.New(cmd,
		validator.WithConcurrency(cfg.Validator.Concurrency),
		validator.WithLogger(logger))

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	rt := &runtime{logger: logger, store: store, db: db, metrics: metrics.New()}

	opts := []crateservice.Option{crateservice.WithLogger(logger)}
	for _, fn := range listeners {
		opts = append(opts, crateservice.WithListener(fn))
	}

	rt.mgr = manager.New(cfg.Scan.Root, store, v,
		manager.WithLogger(logger),
		manager.WithIgnore(cfg.Scan.Ignore),
		manager.WithRecorder(rt.metrics),
		manager.WithOnUpdate(func(s *models.Snapshot, r *manager.Report) {
			rt.svc.HandleUpdate(s, r)
		}))
	rt.svc = crateservice.NewService(rt.mgr, store, db, opts...)

	if err := rt.svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return rt, nil
}

// rescan runs one update cycle and records failures.
func (rt *runtime) rescan(ctx context.Context) (*crateservice.RescanResult, error) {
	res, err := rt.svc.Rescan(ctx)
	if err != nil {
		rt.metrics.ObserveFailure()
	}
	return res, err
}

// Run starts the HTTP server and the watcher, and keeps the cache current
// until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg.App, app.stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("scan_root", cfg.Scan.Root),
		slog.String("cache_dir", cfg.Cache.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := newRuntime(ctx, cfg, logger, func(_ *models.Snapshot, r *manager.Report) {
		broker.PublishReport(r)
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	var ready atomic.Bool

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"scanning"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open SSE streams end when the broker closes.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial update, then the watcher.
	g.Go(func() error {
		if res, err := rt.rescan(gCtx); err != nil {
			logger.Error("initial update failed", slog.String("error", err.Error()))
		} else {
			logger.Info("initial update done",
				slog.Int("version", res.Version),
				slog.Int("links_created", res.LinksCreated))
		}
		ready.Store(true)

		err := rt.mgr.Watch(gCtx, manager.DefaultDebounce, func(_ *models.Snapshot, _ *manager.Report, err error) {
			if err != nil {
				rt.metrics.ObserveFailure()
				logger.Error("watch update failed", slog.String("error", err.Error()))
			}
		})
		if err != nil && gCtx.Err() == nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the HTTP server has stopped so the
// watcher exits too.
var errShutdown = errors.New("shutdown")

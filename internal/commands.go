package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/rocache/internal/mcpserver"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/storage"
)

// The one-shot commands log to stderr and print results to stdout.

func (a *application) logger() *slog.Logger {
	return newLogger(a.config.App, a.stderr)
}

func (a *application) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func configured(opts []Option) (*application, error) {
	app := newApplication(opts)
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Scan runs a single update cycle and prints its summary.
func Scan(ctx context.Context, opts ...Option) error {
	app, err := configured(opts)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, app.config, app.logger())
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.rescan(ctx)
	if res != nil {
		if perr := app.printJSON(res); perr != nil {
			return perr
		}
	}
	return err
}

// List prints the stored snapshot. An empty cache prints an empty snapshot.
func List(_ context.Context, opts ...Option) error {
	app, err := configured(opts)
	if err != nil {
		return err
	}
	store, err := storage.NewFS(app.config.Cache.Dir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	snap, err := store.Load()
	if errors.Is(err, storage.ErrNoSnapshot) {
		snap = models.Empty()
	} else if err != nil {
		return err
	}
	return app.printJSON(snap)
}

// Resolve prints the target of the link named pseudonym.
func Resolve(_ context.Context, pseudonym string, opts ...Option) error {
	app, err := configured(opts)
	if err != nil {
		return err
	}
	store, err := storage.NewFS(app.config.Cache.Dir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	target, err := store.Resolve(pseudonym)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(app.stdout, target)
	return err
}

// Clear removes every link from the cache. The snapshot is kept; the next
// scan re-creates the links of unchanged crates.
func Clear(_ context.Context, opts ...Option) error {
	app, err := configured(opts)
	if err != nil {
		return err
	}
	store, err := storage.NewFS(app.config.Cache.Dir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := store.Clear(); err != nil {
		return err
	}
	app.logger().Info("cache: links cleared", slog.String("dir", store.LinkDir()))
	return nil
}

// ServeMCP serves the MCP tools over stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := configured(opts)
	if err != nil {
		return err
	}
	logger := app.logger()
	slog.SetDefault(logger)

	rt, err := newRuntime(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("mcp: serving on stdio", slog.String("scan_root", app.config.Scan.Root))
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

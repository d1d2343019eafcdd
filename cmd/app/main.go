package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/rocache/internal"
	pkgconfig "github.com/starford/rocache/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("root"); root != "" {
		cfg.Scan.Root = root
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

// action adapts an internal entry point into a cli action.
func action(fn func(ctx context.Context, opts ...internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}
		return fn(ctx, opts...)
	}
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("resolve: expected exactly one pseudonym")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Resolve(ctx, cmd.Args().First(), opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "rocache",
		Usage:   "Scan RO-Crates, validate them and cache their artifacts under stable pseudonyms",
		Version: version,
		Action:  action(internal.Scan),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Directory to scan for crates (overrides scan.root)",
				Sources: cli.EnvVars("ROCACHE_SCAN_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "scan",
				Usage:  "Run one update cycle and print its summary",
				Action: action(internal.Scan),
			},
			{
				Name:   "list",
				Usage:  "Print the cached snapshot",
				Action: action(internal.List),
			},
			{
				Name:      "resolve",
				Usage:     "Print the file a pseudonym links to",
				ArgsUsage: "<pseudonym>",
				Action:    resolve,
			},
			{
				Name:   "clear",
				Usage:  "Remove every artifact link from the cache",
				Action: action(internal.Clear),
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and keep the cache current while files change",
				Action: action(internal.Run),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the cache tools over MCP stdio",
				Action: action(internal.ServeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

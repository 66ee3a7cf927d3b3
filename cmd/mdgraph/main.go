package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdgraph/internal"
	"github.com/starford/mdgraph/internal/mcpserver"
	pkgconfig "github.com/starford/mdgraph/pkg/config"
)

// loadConfig reads the optional config file and applies flag and
// environment overrides on top.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if cmd.IsSet("driver") {
		cfg.Graph.Driver = cmd.String("driver")
	}
	if cmd.IsSet("host") {
		cfg.Graph.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Graph.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("sqlite-path") {
		cfg.Graph.SQLitePath = cmd.String("sqlite-path")
	}
	if cmd.IsSet("notes-root") {
		cfg.Vault.Path = cmd.String("notes-root")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runMode(mode func(context.Context, ...internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := mode(ctx, internal.WithConfig(cfg)); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func printClientConfig(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	root := cfg.Vault.Path
	if root != "" {
		if root, err = filepath.Abs(root); err != nil {
			return fmt.Errorf("resolve notes root: %w", err)
		}
	}
	out := mcpserver.NewClientConfig(self, root, cfg.Graph.Host, cfg.Graph.Port)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func main() {
	cmd := &cli.Command{
		Name:   "mdgraph",
		Usage:  "Sync a markdown vault into a property graph and query it",
		Action: runMode(internal.RunBridge),
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
				Name:    "driver",
				Usage:   "Graph driver: bolt or sqlite",
				Sources: cli.EnvVars("GRAPH_DRIVER"),
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Graph database host",
				Sources: cli.EnvVars("MEMGRAPH_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Graph database port",
				Sources: cli.EnvVars("MEMGRAPH_PORT"),
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				Usage:   "Database file for the sqlite driver",
				Sources: cli.EnvVars("GRAPH_SQLITE_PATH"),
			},
			&cli.StringFlag{
				Name:    "notes-root",
				Usage:   "Vault directory",
				Sources: cli.EnvVars("NOTES_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "bridge",
				Usage:  "Serve the JSON-lines bridge on stdin/stdout (default)",
				Action: runMode(internal.RunBridge),
			},
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio, plus the HTTP API and vault watcher when configured",
				Action: runMode(internal.Run),
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the graph from the vault and print the result",
				Action: runMode(internal.RunReindex),
			},
			{
				Name:   "mcp-config",
				Usage:  "Print an MCP client configuration entry for this binary",
				Action: printClientConfig,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

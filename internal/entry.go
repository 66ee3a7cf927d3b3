// Package internal wires the graph store, sync engine and front ends into
// the runnable modes of the application.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdgraph/internal/api"
	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/mcpserver"
	"github.com/starford/mdgraph/internal/protocol"
	"github.com/starford/mdgraph/internal/query"
	"github.com/starford/mdgraph/internal/session"
	"github.com/starford/mdgraph/internal/sse"
	"github.com/starford/mdgraph/internal/storage"
	"github.com/starford/mdgraph/internal/watch"
)

// connectBackoff is the delay unit between startup connection attempts.
var connectBackoff = time.Second

// graph bundles the components every mode shares.
type graph struct {
	log      *slog.Logger
	sessions *session.Manager
	engine   *graphsync.Engine
	queries  *query.Service
	vault    *storage.Cache // nil without a vault
}

func (a *application) setup(extra ...graphsync.Option) (*graph, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	log := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(log)

	log.Info("Configuration loaded",
		slog.String("driver", cfg.Graph.Driver),
		slog.String("target", cfg.Graph.Target().String()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	g := &graph{log: log}
	if cfg.Vault.Path != "" {
		fs, err := storage.NewFS(cfg.Vault.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if g.vault, err = storage.NewCache(fs, cfg.Vault.CacheSize); err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
	}

	g.sessions = session.NewManager(cfg.Graph.Dialer(log), log)
	opts := append([]graphsync.Option{graphsync.WithPruneOrphans(cfg.Graph.PruneOrphans)}, extra...)
	g.engine = graphsync.New(g.sessions, log, opts...)
	if g.vault != nil {
		g.queries = query.New(g.sessions, g.vault)
	} else {
		g.queries = query.New(g.sessions, nil)
	}
	return g, nil
}

// connect tries the configured target up to 1+ConnectRetries times.
func (g *graph) connect(ctx context.Context, cfg GraphConfig) error {
	var err error
	for attempt := 0; attempt <= cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * connectBackoff):
			}
		}
		if err = g.sessions.Connect(ctx, cfg.Target()); err == nil {
			return nil
		}
		g.log.Warn("graph connect attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
	return err
}

// RunBridge serves the JSON-lines bridge on stdin/stdout until quit or EOF.
// The bridge starts disconnected; clients send `connect` first.
func RunBridge(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	g, err := app.setup()
	if err != nil {
		return err
	}
	defer g.sessions.Close(context.Background())

	d := protocol.New(g.sessions, g.engine, g.queries, g.log)
	g.log.Info("bridge ready")
	return d.Serve(ctx, app.stdin, app.stdout)
}

// RunReindex rebuilds the graph from the vault and writes the result as
// JSON to stdout.
func RunReindex(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	g, err := app.setup()
	if err != nil {
		return err
	}
	if g.vault == nil {
		return fmt.Errorf("reindex: vault path is required")
	}
	defer g.sessions.Close(context.Background())

	if err := g.connect(ctx, app.config.Graph); err != nil {
		return err
	}
	res, err := g.engine.ReindexVault(ctx, g.vault)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Run starts `serve`: the MCP server on stdio plus, when configured, the
// HTTP API with its event stream and the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	g, err := app.setup(graphsync.WithObserver(broker.Observe))
	if err != nil {
		return err
	}
	defer g.sessions.Close(context.Background())
	cfg := app.config
	logger := g.log

	if err := g.connect(ctx, cfg.Graph); err != nil {
		logger.Warn("starting disconnected", slog.String("error", err.Error()))
	} else if g.vault != nil {
		res, err := g.engine.SyncVault(ctx, g.vault)
		if err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		} else {
			logger.Info("initial sync complete",
				slog.Int("indexed", res.Indexed),
				slog.Int("unchanged", res.Unchanged),
				slog.Int("removed", res.Removed),
				slog.Int("failed", res.Failed))
		}
	}

	mcpSrv := mcpserver.New(g.queries, g.engine, g.vault, logger)

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, gCtx := errgroup.WithContext(gctx)

	// MCP over stdio; the client closing stdin ends the process.
	eg.Go(func() error {
		defer cancel()
		if err := mcpSrv.Listen(gCtx, app.stdin, app.stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	if cfg.Vault.Watch && g.vault != nil {
		eg.Go(func() error {
			if err := watch.Watch(gCtx, g.engine, g.vault, logger); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if cfg.App.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: newHTTPHandler(g, broker, cfg),
		}
		eg.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	eg.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

func newHTTPHandler(g *graph, broker *sse.Broker, cfg *Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !g.sessions.HealthCheck(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	h := api.NewHandler(g.queries, g.vault)
	r.Mount("/api", api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))
	return r
}

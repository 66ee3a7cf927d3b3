package session

import (
	"context"
	"log/slog"

	"github.com/starford/mdgraph/internal/graphstore"
)

// BoltDialer connects to Memgraph or Neo4j at the requested target. Only
// host and port come from the target; credentials and dialect from base.
func BoltDialer(base graphstore.BoltConfig, log *slog.Logger) Dialer {
	return func(ctx context.Context, t Target) (graphstore.Backend, error) {
		cfg := base
		cfg.Host, cfg.Port = t.Host, t.Port
		return graphstore.DialBolt(ctx, cfg, log)
	}
}

// SQLiteDialer opens the embedded store at path. The target is recorded
// but otherwise ignored.
func SQLiteDialer(path string) Dialer {
	return func(ctx context.Context, _ Target) (graphstore.Backend, error) {
		return graphstore.OpenSQLite(ctx, path)
	}
}

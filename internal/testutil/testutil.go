// Package testutil provides shared test helpers for setting up vaults and
// connected graph sessions.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mdgraph/internal/session"
	"github.com/starford/mdgraph/internal/storage"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestManager returns a session manager connected to a temporary SQLite
// graph that is closed when the test ends.
func TestManager(t *testing.T) *session.Manager {
	t.Helper()
	ctx := context.Background()
	m := session.NewManager(session.SQLiteDialer(filepath.Join(t.TempDir(), "graph.db")), Logger())
	if err := m.Connect(ctx, session.Target{Host: "localhost", Port: 7687}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close(ctx) })
	return m
}

// TestVault creates a temporary vault directory with a cached provider.
func TestVault(t *testing.T) (string, *storage.Cache) {
	t.Helper()
	vaultDir := t.TempDir()
	fs, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := storage.NewCache(fs, 0)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, c
}

// WriteNote writes a file below the vault root, creating directories.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

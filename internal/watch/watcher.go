// Package watch keeps the graph in step with the vault by following
// filesystem change events.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/storage"
)

// reconcileDelay debounces the vault sync that follows renames.
const reconcileDelay = 200 * time.Millisecond

// Source is a vault whose cached contents can be dropped on change.
type Source interface {
	graphsync.Vault
	Root() string
	Invalidate(rel string)
}

// Watch follows changes below src.Root() until ctx is cancelled.
//
// Directories created at runtime are added to the watch list and their
// notes indexed. fsnotify reports a rename on the old path only, so the old
// note is removed at once and a debounced vault sync picks up the new one.
func Watch(ctx context.Context, e *graphsync.Engine, src Source, log *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := src.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	log.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			log.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			res, err := e.SyncVault(ctx, src)
			if err != nil {
				log.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			log.Debug("watcher: reconciled",
				slog.Int("indexed", res.Indexed),
				slog.Int("removed", res.Removed),
			)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			handle(ctx, w, e, src, root, ev, scheduleReconcile, log)

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher: error", slog.String("error", werr.Error()))
		}
	}
}

func handle(ctx context.Context, w *fsnotify.Watcher, e *graphsync.Engine, src Source, root string,
	ev fsnotify.Event, scheduleReconcile func(), log *slog.Logger) {
	abs := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if storage.IsHidden(filepath.Base(abs)) {
				return
			}
			if err := addDirsRecursive(w, abs); err != nil {
				log.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", err.Error()))
			}
			indexNewDir(ctx, e, src, root, abs, log)
			return
		}
	}

	if !storage.IsNoteFile(abs) {
		return
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	src.Invalidate(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := e.IndexFile(ctx, src, rel); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			log.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		log.Debug("watcher: indexed", slog.String("path", rel))

	case ev.Op&fsnotify.Remove != 0:
		if err := e.RemoveFile(ctx, src, rel); err != nil {
			log.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		log.Debug("watcher: deleted", slog.String("path", rel))

	case ev.Op&fsnotify.Rename != 0:
		if err := e.RemoveFile(ctx, src, rel); err != nil && !errors.Is(err, apperr.ErrConnection) {
			log.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleReconcile()
	}
}

func indexNewDir(ctx context.Context, e *graphsync.Engine, src Source, root, dir string, log *slog.Logger) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && storage.IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !storage.IsNoteFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if err := e.IndexFile(ctx, src, rel); err != nil {
			log.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return nil
		}
		log.Debug("watcher: indexed from new dir", slog.String("path", rel))
		return nil
	})
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

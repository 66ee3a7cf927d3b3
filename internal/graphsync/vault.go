package graphsync

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/checksum"
	"github.com/starford/mdgraph/internal/graphstore"
	"github.com/starford/mdgraph/internal/models"
)

// readConcurrency bounds parallel file reads during a vault reindex.
const readConcurrency = 8

// Vault is the note content source for vault-driven sync.
type Vault interface {
	List(dir string) ([]models.NoteMetadata, error)
	Read(path string) ([]byte, error)
	ReadFresh(m models.NoteMetadata) ([]byte, error)
	NotePath(rel string) string
	RelPath(notePath string) (string, bool)
}

// SyncResult summarizes an incremental vault sync.
type SyncResult struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// SyncVault brings the graph up to date with the vault:
//   - new/changed files are extracted and upserted
//   - notes whose files are gone are deleted
//
// Per-file failures are logged and counted. A lost connection aborts.
func (e *Engine) SyncVault(ctx context.Context, v Vault) (SyncResult, error) {
	var res SyncResult
	metas, err := v.List("")
	if err != nil {
		return res, err
	}
	var hashes map[string]string
	err = e.sessions.Do(ctx, func(b graphstore.Backend) error {
		var err error
		hashes, err = b.ContentHashes(ctx)
		return err
	})
	if err != nil {
		return res, err
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		notePath := v.NotePath(m.Path)
		onDisk[notePath] = struct{}{}

		data, err := v.ReadFresh(m)
		if err != nil {
			e.log.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			res.Failed++
			continue
		}
		if hashes[notePath] == checksum.Sum(data) {
			res.Unchanged++
			continue
		}
		if _, err := e.UpsertNote(ctx, FromContent(notePath, string(data))); err != nil {
			if errors.Is(err, apperr.ErrConnection) {
				return res, err
			}
			e.log.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			res.Failed++
			continue
		}
		res.Indexed++
	}

	for p := range hashes {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if _, inVault := v.RelPath(p); !inVault {
			continue
		}
		if err := e.DeleteNote(ctx, p); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			if errors.Is(err, apperr.ErrConnection) {
				return res, err
			}
			e.log.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		e.log.Debug("sync: removed stale", slog.String("path", p))
		res.Removed++
	}
	return res, nil
}

// ReindexVault reads every vault file and rebuilds the graph from them.
func (e *Engine) ReindexVault(ctx context.Context, v Vault) (ReindexResult, error) {
	metas, err := v.List("")
	if err != nil {
		return ReindexResult{}, err
	}

	inputs := make([]*NoteInput, len(metas))
	readErrs := make([]error, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, m := range metas {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := v.ReadFresh(m)
			if err != nil {
				readErrs[i] = err
				return nil
			}
			in := FromContent(v.NotePath(m.Path), string(data))
			inputs[i] = &in
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReindexResult{}, err
	}

	notes := make([]NoteInput, 0, len(metas))
	var failed []ReindexError
	for i, m := range metas {
		if readErrs[i] != nil {
			failed = append(failed, ReindexError{Path: v.NotePath(m.Path), Error: readErrs[i].Error()})
			continue
		}
		notes = append(notes, *inputs[i])
	}

	res, err := e.Reindex(ctx, notes)
	res.Total = len(metas)
	res.Errors = append(failed, res.Errors...)
	if res.Errors == nil {
		res.Errors = []ReindexError{}
	}
	return res, err
}

// IndexFile syncs one vault file, skipping it when its content is unchanged.
func (e *Engine) IndexFile(ctx context.Context, v Vault, rel string) error {
	data, err := v.Read(rel)
	if err != nil {
		return err
	}
	notePath := v.NotePath(rel)
	var stored *models.Note
	err = e.sessions.Do(ctx, func(b graphstore.Backend) error {
		var err error
		stored, err = b.GetNote(ctx, notePath)
		return err
	})
	if err != nil {
		return err
	}
	if stored != nil && !stored.Placeholder && stored.ContentHash == checksum.Sum(data) {
		return nil
	}
	_, err = e.UpsertNote(ctx, FromContent(notePath, string(data)))
	return err
}

// RemoveFile deletes the note for a vault file. A missing note is not an
// error.
func (e *Engine) RemoveFile(ctx context.Context, v Vault, rel string) error {
	err := e.DeleteNote(ctx, v.NotePath(rel))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

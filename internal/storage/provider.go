// Package storage is the read-only view of the markdown vault: file listing,
// cached reads and line-level content search.
package storage

import "github.com/starford/mdgraph/internal/models"

// Provider is the interface for vault file access.
type Provider interface {
	// Root is the absolute vault directory.
	Root() string
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// NotePath maps a vault-relative path to the key notes are stored under.
	NotePath(rel string) string
	// RelPath maps a note key back to a vault-relative path. ok is false for
	// keys outside the vault.
	RelPath(notePath string) (rel string, ok bool)
}

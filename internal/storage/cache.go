package storage

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/mdgraph/internal/models"
)

// DefaultCacheSize is the number of files kept when no size is configured.
const DefaultCacheSize = 512

type cachedFile struct {
	size int64
	mod  time.Time
	data []byte
}

// Cache wraps a Provider with an LRU of file contents. Entries are reused
// only while the file's size and modification time are unchanged.
type Cache struct {
	Provider
	files *lru.Cache[string, cachedFile]
}

// NewCache wraps p. A non-positive size selects DefaultCacheSize.
func NewCache(p Provider, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	files, err := lru.New[string, cachedFile](size)
	if err != nil {
		return nil, fmt.Errorf("storage: new cache: %w", err)
	}
	return &Cache{Provider: p, files: files}, nil
}

// ReadFresh returns the content described by m.
func (c *Cache) ReadFresh(m models.NoteMetadata) ([]byte, error) {
	if f, ok := c.files.Get(m.Path); ok && f.size == m.Size && f.mod.Equal(m.UpdatedAt) {
		return f.data, nil
	}
	data, err := c.Provider.Read(m.Path)
	if err != nil {
		c.files.Remove(m.Path)
		return nil, err
	}
	c.files.Add(m.Path, cachedFile{size: m.Size, mod: m.UpdatedAt, data: data})
	return data, nil
}

// Invalidate drops the cached copy of path.
func (c *Cache) Invalidate(path string) {
	c.files.Remove(path)
}

// Len reports the number of cached files.
func (c *Cache) Len() int {
	return c.files.Len()
}

package similarity

import (
	"context"
	"sync"
)

// VectorStore is a shared cache tier keyed by model and content hash, so
// several API instances embed each text once.
type VectorStore interface {
	GetVectors(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	PutVectors(ctx context.Context, model string, vecs map[string][]float32) error
}

type cacheEntry struct {
	model string
	hash  string
	vec   []float32
}

// Cache holds one vector per book. An entry is only valid for the model and
// content hash it was computed from, so editing a book's text invalidates it
// implicitly; Retain drops books that left the catalog.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[int64]cacheEntry)}
}

func (c *Cache) Get(bookID int64, model, hash string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[bookID]
	if !ok || e.model != model || e.hash != hash {
		return nil, false
	}
	return e.vec, true
}

func (c *Cache) Put(bookID int64, model, hash string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[bookID] = cacheEntry{model: model, hash: hash, vec: vec}
}

// Retain drops every entry whose book is not in keep.
func (c *Cache) Retain(keep map[int64]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if _, ok := keep[id]; !ok {
			delete(c.entries, id)
		}
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

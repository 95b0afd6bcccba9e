// Package ingestion turns loaded documents into embedded chunks in a vector store.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// DefaultCacheName is the collection used when none is given.
const DefaultCacheName = "embeddings"

// EmbeddingCache remembers embeddings by content hash so unchanged chunks are
// not re-embedded on the next run. Collections keep vectors from different
// models apart.
type EmbeddingCache struct {
	collection string
	cache      map[string]map[string][]float64
	mu         sync.RWMutex
}

// EmbeddingCacheOption configures an EmbeddingCache.
type EmbeddingCacheOption func(*EmbeddingCache)

// WithCacheCollection sets the default collection name, usually the model name.
func WithCacheCollection(collection string) EmbeddingCacheOption {
	return func(c *EmbeddingCache) {
		c.collection = collection
	}
}

// NewEmbeddingCache creates an empty cache.
func NewEmbeddingCache(opts ...EmbeddingCacheOption) *EmbeddingCache {
	c := &EmbeddingCache{
		collection: DefaultCacheName,
		cache:      make(map[string]map[string][]float64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentKey is the cache key for a chunk of text.
func ContentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Put stores an embedding. An empty collection means the default one.
func (c *EmbeddingCache) Put(key string, vec []float64, collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	collection = c.resolve(collection)
	if _, ok := c.cache[collection]; !ok {
		c.cache[collection] = make(map[string][]float64)
	}
	c.cache[collection][key] = append([]float64(nil), vec...)
}

// Get returns a copy of a cached embedding.
func (c *EmbeddingCache) Get(key string, collection string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vec, ok := c.cache[c.resolve(collection)][key]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), vec...), true
}

// Len returns the number of entries in a collection.
func (c *EmbeddingCache) Len(collection string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache[c.resolve(collection)])
}

// Clear clears the cache for a collection.
func (c *EmbeddingCache) Clear(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, c.resolve(collection))
}

// Persist saves the cache to a JSON file.
func (c *EmbeddingCache) Persist(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c.cache)
	if err != nil {
		return fmt.Errorf("failed to encode embedding cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	return nil
}

// LoadFromPath merges a persisted cache into c.
func (c *EmbeddingCache) LoadFromPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loaded := make(map[string]map[string][]float64)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to decode embedding cache %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for coll, entries := range loaded {
		if _, ok := c.cache[coll]; !ok {
			c.cache[coll] = make(map[string][]float64, len(entries))
		}
		for k, v := range entries {
			c.cache[coll][k] = v
		}
	}
	return nil
}

// NewEmbeddingCacheFromPath loads a cache, starting empty when the file does not exist yet.
func NewEmbeddingCacheFromPath(path string, opts ...EmbeddingCacheOption) (*EmbeddingCache, error) {
	c := NewEmbeddingCache(opts...)
	if err := c.LoadFromPath(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return c, nil
}

// Collection returns the default collection name.
func (c *EmbeddingCache) Collection() string {
	return c.collection
}

func (c *EmbeddingCache) resolve(collection string) string {
	if collection == "" {
		return c.collection
	}
	return collection
}

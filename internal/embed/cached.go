package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/trenton/internal/media"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by content hash,
// modality and model version. Restored or duplicated files and repeated
// query-by-media calls skip the model entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder wrapping the given embedder.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}
}

func (c *CachedEmbedder) cacheKey(data []byte, modality media.Modality, modelVersion string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + "\x00" + modality.String() + "\x00" + modelVersion
}

// Embed returns the cached vector if available, otherwise computes and caches.
// Errors are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, data []byte, modality media.Modality, modelVersion string) ([]float32, error) {
	if modelVersion == "" {
		modelVersion = c.inner.ModelVersion()
	}
	key := c.cacheKey(data, modality, modelVersion)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, data, modality, modelVersion)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelVersion returns the model version (passthrough to inner).
func (c *CachedEmbedder) ModelVersion() string {
	return c.inner.ModelVersion()
}

// Available checks if the embedder is ready (passthrough to inner).
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close purges the cache and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// Inner returns the underlying embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

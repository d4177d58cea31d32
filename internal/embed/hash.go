package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
)

// Weights for vector generation
const (
	blockWeight   = 0.7
	shingleWeight = 0.3
	blockSize     = 64
	shingleSize   = 8
	// shingleStride keeps the work linear in file size on large media.
	shingleStride = 61
)

// HashEmbedder generates embeddings by hashing content blocks into buckets.
// Works without external dependencies (no network, no model download).
// Identical bytes give identical vectors; files sharing long runs of bytes
// land close together. The model version seeds the hash, so each version is
// its own vector space.
type HashEmbedder struct {
	dims    int
	version string

	mu     sync.RWMutex
	closed bool
}

// NewHashEmbedder creates a hash embedder. Zero values take the defaults.
func NewHashEmbedder(dims int, modelVersion string) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	if modelVersion == "" {
		modelVersion = DefaultModelVersion
	}
	return &HashEmbedder{dims: dims, version: modelVersion}
}

var _ Embedder = (*HashEmbedder)(nil)

// Embed hashes data into a unit vector.
func (e *HashEmbedder) Embed(ctx context.Context, data []byte, modality media.Modality, modelVersion string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, terrors.New(terrors.ErrCodeEmbedderUnavailable, "embedder is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !modality.Searchable() {
		return nil, terrors.New(terrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("modality %q cannot be embedded", modality), nil)
	}
	if len(data) == 0 {
		return nil, terrors.New(terrors.ErrCodeUnsupportedFormat, "empty content", nil)
	}
	if modelVersion == "" {
		modelVersion = e.version
	}

	return normalizeVector(e.generateVector(data, modelVersion)), nil
}

func (e *HashEmbedder) generateVector(data []byte, seed string) []float32 {
	vector := make([]float32, e.dims)

	// Step 1: fixed blocks
	for off := 0; off < len(data); off += blockSize {
		end := min(off+blockSize, len(data))
		vector[hashToIndex(seed, data[off:end], e.dims)] += blockWeight
	}

	// Step 2: strided shingles, which survive small insertions
	for off := 0; off+shingleSize <= len(data); off += shingleStride {
		vector[hashToIndex(seed, data[off:off+shingleSize], e.dims)] += shingleWeight
	}

	// Short inputs still get a non-zero vector
	if len(data) < shingleSize {
		vector[hashToIndex(seed, data, e.dims)] += shingleWeight
	}

	return vector
}

// hashToIndex uses FNV-64 to map a seeded byte run to an index.
func hashToIndex(seed string, b []byte, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write(b)
	return int(h.Sum64() % uint64(size))
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// ModelVersion returns the configured model version.
func (e *HashEmbedder) ModelVersion() string {
	return e.version
}

// Available checks if the embedder is ready (always true until closed).
func (e *HashEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *HashEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

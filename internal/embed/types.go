// Package embed turns media bytes into fixed-length vectors.
//
// The model itself is an external collaborator: the HTTP embedder talks to a
// model service, and the hash embedder is a deterministic offline stand-in.
// Both must return the same vector for the same bytes and model version.
package embed

import (
	"context"
	"math"
	"time"

	"github.com/Aman-CERP/trenton/internal/media"
)

const (
	// DefaultDimensions is the vector length of the hash embedder.
	DefaultDimensions = 512

	// DefaultModelVersion identifies the hash embedder's vector space.
	DefaultModelVersion = "hash-v1"

	// DefaultTimeout bounds one embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultCacheSize is the number of vectors kept by CachedEmbedder.
	DefaultCacheSize = 1000
)

// Embedder generates vector embeddings for media content.
type Embedder interface {
	// Embed returns the vector of data interpreted as modality, in the
	// vector space of modelVersion. It fails with an UnsupportedFormat,
	// EmbedderTimeout or EmbedderExhausted error.
	Embed(ctx context.Context, data []byte, modality media.Modality, modelVersion string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelVersion returns the default model version.
	ModelVersion() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

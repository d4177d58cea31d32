package search

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/trenton/internal/media"
)

const (
	// DefaultTopK is used when a query does not set one.
	DefaultTopK = 10

	// DefaultMaxTopK caps TopK.
	DefaultMaxTopK = 100
)

// EngineConfig configures result limits.
type EngineConfig struct {
	// DefaultTopK applies when a query leaves TopK at zero.
	DefaultTopK int

	// MaxTopK rejects queries asking for more results.
	MaxTopK int

	// DefaultThreshold applies when a query leaves Threshold nil.
	DefaultThreshold float64

	// ModelVersion selects the vector space searched. Defaults to the
	// embedder's.
	ModelVersion string
}

// DefaultEngineConfig returns the default limits.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTopK: DefaultTopK,
		MaxTopK:     DefaultMaxTopK,
	}
}

// Query is a vector search request.
type Query struct {
	Vector []float32

	// Modality is the modality of the stored embeddings to search.
	Modality media.Modality

	// TopK bounds the number of results. Zero means the default.
	TopK int

	// Threshold is the minimum score kept. Nil means the default.
	Threshold *float64
}

// Result is one ranked match.
type Result struct {
	FileID   int64          `json:"file_id"`
	Path     string         `json:"path"`
	Filename string         `json:"filename"`
	Modality media.Modality `json:"modality"`
	Score    float64        `json:"score"`

	// Deleted is set when the file is gone from disk. Deleted matches are
	// returned, never hidden.
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Response is a search outcome. An empty Results slice is a valid answer.
type Response struct {
	Results   []Result       `json:"results"`
	Modality  media.Modality `json:"modality"`
	TopK      int            `json:"top_k"`
	Threshold float64        `json:"threshold"`

	// Warnings holds one message per deleted match that has not been
	// reported before.
	Warnings []string `json:"warnings,omitempty"`
	Took     string   `json:"took"`
}

// deletedWarning is the message shown the first time a deleted file matches.
func deletedWarning(name string) string {
	return fmt.Sprintf("Matching file '%s' has been deleted from source", name)
}

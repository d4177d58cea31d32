package embed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderHash uses deterministic hash-based embeddings (offline, default)
	ProviderHash ProviderType = "hash"

	// ProviderHTTP calls an external model service
	ProviderHTTP ProviderType = "http"
)

// ParseProvider parses a provider name.
func ParseProvider(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderHash:
		return ProviderHash, nil
	case ProviderHTTP:
		return ProviderHTTP, nil
	default:
		return "", fmt.Errorf("unknown embeddings provider %q (use hash or http)", s)
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider     ProviderType
	ModelVersion string
	Dimensions   int
	Endpoint     string
	Timeout      time.Duration
	// CacheSize of 0 uses the default; a negative value disables caching.
	CacheSize int
}

// New creates an embedder for opts, wrapped in a CachedEmbedder unless
// caching is disabled.
func New(opts Options) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch opts.Provider {
	case ProviderHTTP:
		inner, err = NewHTTPEmbedder(HTTPConfig{
			Endpoint:     opts.Endpoint,
			ModelVersion: opts.ModelVersion,
			Dimensions:   opts.Dimensions,
			Timeout:      opts.Timeout,
		})
	case ProviderHash, "":
		inner = NewHashEmbedder(opts.Dimensions, opts.ModelVersion)
	default:
		err = fmt.Errorf("unknown embeddings provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(opts.Provider)),
		slog.String("model_version", inner.ModelVersion()),
		slog.Int("dimensions", inner.Dimensions()))

	if opts.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, opts.CacheSize), nil
}

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/pkg/version"
)

// HTTPConfig configures the HTTP embedder
type HTTPConfig struct {
	// Endpoint is the model service base URL, e.g. http://localhost:8080
	Endpoint string

	// ModelVersion is sent when the caller does not name one
	ModelVersion string

	// Dimensions is the expected vector length; responses of another
	// length are rejected
	Dimensions int

	// Timeout bounds a single request (default: 60s)
	Timeout time.Duration

	// PoolSize for the HTTP connection pool (default: 4)
	PoolSize int
}

// embedRequest is the body of POST /embed. Content is base64 on the wire.
type embedRequest struct {
	Model    string `json:"model"`
	Modality string `json:"modality"`
	Content  []byte `json:"content"`
}

type embedResponse struct {
	Model     string    `json:"model"`
	Embedding []float64 `json:"embedding"`
}

// HTTPEmbedder calls an external model service over HTTP.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an HTTP embedder. It does not contact the service.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, terrors.New(terrors.ErrCodeConfigInvalid, "embeddings.endpoint is required for the http provider", nil)
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = DefaultModelVersion
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	// No client-wide Timeout: each request gets its own context deadline so
	// a parent cancellation and a request timeout can be told apart.
	return &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

// Embed posts data to the model service.
func (e *HTTPEmbedder) Embed(ctx context.Context, data []byte, modality media.Modality, modelVersion string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, terrors.New(terrors.ErrCodeEmbedderUnavailable, "embedder is closed", nil)
	}
	if !modality.Searchable() {
		return nil, terrors.New(terrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("modality %q cannot be embedded", modality), nil)
	}
	if modelVersion == "" {
		modelVersion = e.config.ModelVersion
	}

	body, err := json.Marshal(embedRequest{Model: modelVersion, Modality: modality.String(), Content: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		// Parent cancellation is not an embedder failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err, e.config.Timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, terrors.New(terrors.ErrCodeTransientIO, "failed to decode embedding response", err)
	}
	if len(result.Embedding) != e.config.Dimensions {
		return nil, terrors.New(terrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedder returned %d dimensions, expected %d", len(result.Embedding), e.config.Dimensions), nil)
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}

	slog.Debug("embedding_complete",
		slog.String("modality", modality.String()),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)))

	return normalizeVector(vec), nil
}

// classifyStatus maps a service status code to the error taxonomy.
func classifyStatus(code int, body string) error {
	msg := fmt.Sprintf("embedding failed with status %d: %s", code, body)
	switch {
	case code == http.StatusUnsupportedMediaType, code == http.StatusUnprocessableEntity:
		return terrors.New(terrors.ErrCodeUnsupportedFormat, msg, nil)
	case code == http.StatusTooManyRequests, code == http.StatusServiceUnavailable, code == http.StatusInsufficientStorage:
		return terrors.New(terrors.ErrCodeEmbedderExhausted, msg, nil)
	case code == http.StatusGatewayTimeout, code == http.StatusRequestTimeout:
		return terrors.New(terrors.ErrCodeEmbedderTimeout, msg, nil)
	case code >= 500:
		return terrors.New(terrors.ErrCodeTransientIO, msg, nil)
	default:
		return terrors.New(terrors.ErrCodeEmbedderUnavailable, msg, nil)
	}
}

func classifyTransportError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return terrors.New(terrors.ErrCodeEmbedderTimeout,
			fmt.Sprintf("embedding timed out after %s", timeout), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return terrors.New(terrors.ErrCodeEmbedderTimeout, "embedding request timed out", err)
	}
	return terrors.New(terrors.ErrCodeEmbedderUnavailable, "embedding service unreachable", err).
		WithSuggestion("Check that the embedding service is running at embeddings.endpoint")
}

// Dimensions returns the expected embedding dimension
func (e *HTTPEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelVersion returns the default model version
func (e *HTTPEmbedder) ModelVersion() string {
	return e.config.ModelVersion
}

// Available checks if the service answers GET /health
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

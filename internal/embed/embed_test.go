package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/pkg/version"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(128, "hash-v1")
	ctx := context.Background()
	data := []byte("RIFF....WAVEfmt some audio payload that is long enough to shingle")

	// When: the same content is embedded twice
	a, err := e.Embed(ctx, data, media.ModalityAudio, "")
	require.NoError(t, err)
	b, err := e.Embed(ctx, data, media.ModalityAudio, "")
	require.NoError(t, err)

	// Then: vectors are identical and unit length
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, vectorMagnitude(a), 1e-5)
}

func TestHashEmbedder_ModelVersionIsSeparateSpace(t *testing.T) {
	e := NewHashEmbedder(128, "hash-v1")
	ctx := context.Background()
	data := []byte("the same bytes under two model versions")

	a, err := e.Embed(ctx, data, media.ModalityVideo, "hash-v1")
	require.NoError(t, err)
	b, err := e.Embed(ctx, data, media.ModalityVideo, "hash-v2")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashEmbedder_Rejects(t *testing.T) {
	e := NewHashEmbedder(0, "")
	ctx := context.Background()

	tests := []struct {
		name     string
		data     []byte
		modality media.Modality
	}{
		{name: "empty content", data: nil, modality: media.ModalityAudio},
		{name: "unknown modality", data: []byte("x"), modality: media.ModalityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Embed(ctx, tt.data, tt.modality, "")
			assert.ErrorIs(t, err, terrors.ErrUnsupportedFormat)
			assert.False(t, terrors.IsRetryable(err))
		})
	}

	// And: a closed embedder is unavailable
	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))
	_, err := e.Embed(ctx, []byte("x"), media.ModalityAudio, "")
	assert.Error(t, err)
}

func TestHashEmbedder_Defaults(t *testing.T) {
	e := NewHashEmbedder(0, "")
	assert.Equal(t, DefaultDimensions, e.Dimensions())
	assert.Equal(t, DefaultModelVersion, e.ModelVersion())
}

// countingEmbedder is a test double that counts calls
type countingEmbedder struct {
	calls atomic.Int64
	inner *HashEmbedder
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, data []byte, m media.Modality, v string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, data, m, v)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *countingEmbedder) ModelVersion() string { return c.inner.ModelVersion() }

func (c *countingEmbedder) Available(ctx context.Context) bool { return true }

func (c *countingEmbedder) Close() error { return nil }

func TestCachedEmbedder_HitsByContentModalityAndVersion(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(32, "hash-v1")}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	data := []byte("some media bytes")

	// Given: one embedding computed
	_, err := c.Embed(ctx, data, media.ModalityAudio, "")
	require.NoError(t, err)

	// When: the same content is embedded again
	_, err = c.Embed(ctx, data, media.ModalityAudio, "hash-v1")
	require.NoError(t, err)

	// Then: the inner embedder is not called again
	assert.Equal(t, int64(1), inner.calls.Load())

	// And: another modality or version misses the cache
	_, err = c.Embed(ctx, data, media.ModalityVideo, "")
	require.NoError(t, err)
	_, err = c.Embed(ctx, data, media.ModalityAudio, "hash-v2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), inner.calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{
		inner: NewHashEmbedder(32, "hash-v1"),
		err:   terrors.New(terrors.ErrCodeEmbedderTimeout, "slow", nil),
	}
	c := NewCachedEmbedder(inner, 10)

	for i := 0; i < 2; i++ {
		_, err := c.Embed(context.Background(), []byte("x"), media.ModalityAudio, "")
		assert.Error(t, err)
	}
	assert.Equal(t, int64(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func newTestHTTPEmbedder(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *HTTPEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Dimensions: 3, Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestHTTPEmbedder_Success(t *testing.T) {
	var got embedRequest
	var userAgent string
	e := newTestHTTPEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			userAgent = r.Header.Get("User-Agent")
			_ = json.NewDecoder(r.Body).Decode(&got)
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{3, 0, 4}})
		}
	}, time.Second)
	ctx := context.Background()

	vec, err := e.Embed(ctx, []byte("abc"), media.ModalityVideo, "clap-v2")
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, vec, 1e-6)
	assert.Equal(t, "clap-v2", got.Model)
	assert.Equal(t, "video", got.Modality)
	assert.Equal(t, []byte("abc"), got.Content)
	assert.Equal(t, version.UserAgent(), userAgent)
	assert.True(t, e.Available(ctx))
}

func TestHTTPEmbedder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{name: "unsupported media", status: http.StatusUnsupportedMediaType, wantCode: terrors.ErrCodeUnsupportedFormat},
		{name: "rate limited", status: http.StatusTooManyRequests, wantCode: terrors.ErrCodeEmbedderExhausted, retryable: true},
		{name: "overloaded", status: http.StatusServiceUnavailable, wantCode: terrors.ErrCodeEmbedderExhausted, retryable: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, wantCode: terrors.ErrCodeEmbedderTimeout, retryable: true},
		{name: "server error", status: http.StatusInternalServerError, wantCode: terrors.ErrCodeTransientIO, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, wantCode: terrors.ErrCodeEmbedderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestHTTPEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}, time.Second)

			_, err := e.Embed(context.Background(), []byte("abc"), media.ModalityAudio, "")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, terrors.GetCode(err))
			assert.Equal(t, tt.retryable, terrors.IsRetryable(err))
		})
	}
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	e := newTestHTTPEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{1, 2}})
	}, time.Second)

	_, err := e.Embed(context.Background(), []byte("abc"), media.ModalityAudio, "")
	assert.Equal(t, terrors.ErrCodeDimensionMismatch, terrors.GetCode(err))
}

func TestHTTPEmbedder_Timeout(t *testing.T) {
	release := make(chan struct{})
	e := newTestHTTPEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := e.Embed(context.Background(), []byte("abc"), media.ModalityAudio, "")
	assert.Equal(t, terrors.ErrCodeEmbedderTimeout, terrors.GetCode(err))
	assert.True(t, terrors.IsRetryable(err))
}

func TestNew_Providers(t *testing.T) {
	e, err := New(Options{Provider: ProviderHash, Dimensions: 16})
	require.NoError(t, err)
	_, cached := e.(*CachedEmbedder)
	assert.True(t, cached)
	assert.Equal(t, 16, e.Dimensions())

	e, err = New(Options{Provider: ProviderHash, CacheSize: -1})
	require.NoError(t, err)
	_, isHash := e.(*HashEmbedder)
	assert.True(t, isHash)

	_, err = New(Options{Provider: ProviderHTTP})
	assert.Error(t, err)

	_, err = ParseProvider("onnx")
	assert.Error(t, err)
}

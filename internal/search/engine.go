// Package search ranks stored embeddings against a query vector.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Aman-CERP/trenton/internal/embed"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/metrics"
	"github.com/Aman-CERP/trenton/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Search kinds, used as the metrics label.
const (
	kindVector  = "vector"
	kindSimilar = "similar"
	kindMedia   = "media"
)

// Engine validates queries, runs them against the store and annotates
// deleted matches. Queries only read a store snapshot and never wait on
// indexing.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
	config   EngineConfig
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithEmbedder enables dimension checks and SearchByMedia.
func WithEmbedder(e embed.Embedder) EngineOption {
	return func(eng *Engine) {
		eng.embedder = e
	}
}

// NewEngine creates a search engine over st.
func NewEngine(st *store.Store, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store: %w", ErrNilDependency)
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}
	if cfg.DefaultTopK > cfg.MaxTopK {
		cfg.DefaultTopK = cfg.MaxTopK
	}

	e := &Engine{store: st, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.ModelVersion == "" && e.embedder != nil {
		e.config.ModelVersion = e.embedder.ModelVersion()
	}
	if e.config.ModelVersion == "" {
		e.config.ModelVersion = embed.DefaultModelVersion
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Search ranks embeddings of q.Modality by dot product with q.Vector.
// Malformed parameters are rejected before the store is touched.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	return e.run(ctx, kindVector, q, 0)
}

// SearchSimilarTo finds files like fileID using its stored embedding. The
// search targets the file's own modality and excludes the file itself.
func (e *Engine) SearchSimilarTo(ctx context.Context, fileID int64, topK int) (*Response, error) {
	start := time.Now()
	f, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		e.observe(kindSimilar, start, 0, err)
		return nil, err
	}
	emb, err := e.store.GetEmbedding(ctx, f.ID, f.Modality, e.config.ModelVersion)
	if err != nil {
		if errors.Is(err, terrors.ErrNotFound) {
			err = terrors.NotFoundError(fmt.Sprintf("file %d has no %s embedding", fileID, f.Modality)).
				WithSuggestion("Index the file before searching for similar files")
		}
		e.observe(kindSimilar, start, 0, err)
		return nil, err
	}
	if emb.ContentHash != f.ContentHash {
		err := terrors.NotFoundError(fmt.Sprintf("file %d has changed since it was indexed", fileID))
		e.observe(kindSimilar, start, 0, err)
		return nil, err
	}

	return e.run(ctx, kindSimilar, Query{
		Vector:   emb.Vector,
		Modality: f.Modality,
		TopK:     topK,
	}, f.ID)
}

// SearchByMedia embeds data as queryModality and searches target. An empty
// target searches the query's own modality.
func (e *Engine) SearchByMedia(ctx context.Context, data []byte, queryModality, target media.Modality, topK int, threshold *float64) (*Response, error) {
	start := time.Now()
	if e.embedder == nil {
		err := terrors.New(terrors.ErrCodeEmbedderUnavailable, "search by media needs an embedder", nil)
		e.observe(kindMedia, start, 0, err)
		return nil, err
	}
	if !queryModality.Searchable() {
		err := terrors.ValidationError("query modality must be audio or video", nil)
		e.observe(kindMedia, start, 0, err)
		return nil, err
	}
	if len(data) == 0 {
		err := terrors.ValidationError("query media is empty", nil)
		e.observe(kindMedia, start, 0, err)
		return nil, err
	}
	if target == "" {
		target = queryModality
	}

	// reject bad limits before paying for an embedding
	if _, _, err := e.validate(Query{Modality: target, TopK: topK, Threshold: threshold}, false); err != nil {
		e.observe(kindMedia, start, 0, err)
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, data, queryModality, e.config.ModelVersion)
	if err != nil {
		e.observe(kindMedia, start, 0, err)
		return nil, err
	}
	return e.run(ctx, kindMedia, Query{
		Vector:    vec,
		Modality:  target,
		TopK:      topK,
		Threshold: threshold,
	}, 0)
}

func (e *Engine) run(ctx context.Context, kind string, q Query, exclude int64) (*Response, error) {
	start := time.Now()

	topK, threshold, err := e.validate(q, true)
	if err != nil {
		e.observe(kind, start, 0, err)
		return nil, err
	}

	matches, err := e.store.Query(ctx, store.QueryParams{
		Vector:        q.Vector,
		Modality:      q.Modality,
		ModelVersion:  e.config.ModelVersion,
		TopK:          topK,
		Threshold:     threshold,
		ExcludeFileID: exclude,
	})
	if err != nil {
		e.observe(kind, start, 0, err)
		return nil, err
	}

	resp := &Response{
		Results:   make([]Result, 0, len(matches)),
		Modality:  q.Modality,
		TopK:      topK,
		Threshold: threshold,
	}
	var notify []int64
	for _, m := range matches {
		f := m.File
		resp.Results = append(resp.Results, Result{
			FileID:    f.ID,
			Path:      f.Path,
			Filename:  f.Filename,
			Modality:  f.Modality,
			Score:     m.Score,
			Deleted:   f.Deleted,
			DeletedAt: f.DeletedAt,
		})
		if f.Deleted && !f.DeletionNotified {
			resp.Warnings = append(resp.Warnings, deletedWarning(f.Filename))
			notify = append(notify, f.ID)
		}
	}

	if len(notify) > 0 {
		// A lost notification only means the warning is shown again.
		if err := e.store.MarkDeletionNotified(context.WithoutCancel(ctx), notify); err != nil {
			slog.Warn("mark deletion notified failed", slog.String("error", err.Error()))
		}
	}

	resp.Took = time.Since(start).String()
	e.observe(kind, start, len(resp.Results), nil)
	return resp, nil
}

// validate applies defaults and rejects malformed parameters.
func (e *Engine) validate(q Query, needVector bool) (int, float64, error) {
	if !q.Modality.Searchable() {
		return 0, 0, terrors.ValidationError(
			fmt.Sprintf("modality must be audio or video, got %q", q.Modality), nil)
	}

	topK := q.TopK
	switch {
	case topK == 0:
		topK = e.config.DefaultTopK
	case topK < 0:
		return 0, 0, terrors.ValidationError(fmt.Sprintf("top_k must be positive, got %d", topK), nil)
	case topK > e.config.MaxTopK:
		return 0, 0, terrors.ValidationError(
			fmt.Sprintf("top_k %d exceeds the maximum of %d", topK, e.config.MaxTopK), nil)
	}

	threshold := e.config.DefaultThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return 0, 0, terrors.ValidationError(fmt.Sprintf("threshold must be >= 0, got %v", threshold), nil)
	}

	if !needVector {
		return topK, threshold, nil
	}
	if len(q.Vector) == 0 {
		return 0, 0, terrors.ValidationError("query vector is empty", nil)
	}
	if e.embedder != nil && len(q.Vector) != e.embedder.Dimensions() {
		return 0, 0, terrors.New(terrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, index uses %d", len(q.Vector), e.embedder.Dimensions()), nil)
	}
	return topK, threshold, nil
}

func (e *Engine) observe(kind string, start time.Time, results int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if terrors.GetCategory(err) == terrors.CategoryValidation {
			status = "invalid"
		}
	}
	metrics.SearchTotal.WithLabelValues(kind, status).Inc()
	metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SearchResults.Observe(float64(results))
	}
}

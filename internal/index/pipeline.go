package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/trenton/internal/embed"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/metrics"
	"github.com/Aman-CERP/trenton/internal/store"
)

// PipelineConfig configures the embedding pipeline.
type PipelineConfig struct {
	Embedder embed.Embedder
	Store    *store.Store

	// ModelVersion selects the vector space. Defaults to the embedder's.
	ModelVersion string

	// Retry bounds retries of transient read, embed and write failures.
	Retry terrors.RetryConfig
}

// Pipeline turns one file into a stored embedding.
type Pipeline struct {
	embedder     embed.Embedder
	store        *store.Store
	modelVersion string
	retry        terrors.RetryConfig
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	mv := cfg.ModelVersion
	if mv == "" {
		mv = cfg.Embedder.ModelVersion()
	}
	return &Pipeline{
		embedder:     cfg.Embedder,
		store:        cfg.Store,
		modelVersion: mv,
		retry:        cfg.Retry,
	}
}

// ModelVersion returns the vector space the pipeline writes.
func (p *Pipeline) ModelVersion() string {
	return p.modelVersion
}

// Fingerprint hashes the file at path, retrying transient read errors.
// A missing path returns nil and no error.
func (p *Pipeline) Fingerprint(ctx context.Context, path string) (*media.Fingerprint, error) {
	fp, err := terrors.RetryWithResult(ctx, p.retry, func() (media.Fingerprint, error) {
		return media.HashFile(path)
	})
	if err != nil {
		switch terrors.GetCode(err) {
		case terrors.ErrCodeFileNotFound, terrors.ErrCodeNotAFile:
			return nil, nil
		}
		return nil, err
	}
	return &fp, nil
}

// Index reads f.Path, embeds the bytes and writes file and vector in one
// transaction. f is updated with the fingerprint of the bytes that were
// embedded. Nothing is written on failure; the caller decides how to record
// it.
//
// Retries wait on ctx. The read, embed and write themselves run detached
// from cancellation so an in-flight file is never half written.
func (p *Pipeline) Index(ctx context.Context, f *store.MediaFile) error {
	work := context.WithoutCancel(ctx)
	retry := p.retry
	retry.OnRetry = func(attempt int, err error) {
		metrics.EmbedRetries.Inc()
		slog.Debug("embed_retry",
			slog.String("path", f.Path),
			slog.Int("attempt", attempt),
			slog.String("code", terrors.GetCode(err)))
	}

	var vec []float32
	err := terrors.Retry(ctx, retry, func() error {
		data, fp, err := media.ReadFile(f.Path)
		if err != nil {
			return err
		}
		f.ContentHash = fp.Hash
		f.Size = fp.Size
		f.ModTime = fp.ModTime

		start := time.Now()
		v, err := p.embedder.Embed(work, data, f.Modality, p.modelVersion)
		metrics.EmbedDuration.WithLabelValues(f.Modality.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return err
	}

	emb := &store.Embedding{
		Modality:     f.Modality,
		ModelVersion: p.modelVersion,
		Vector:       vec,
	}
	return terrors.Retry(ctx, retry, func() error {
		_, err := p.store.Upsert(work, f, emb)
		return err
	})
}

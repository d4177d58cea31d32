package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trenton/internal/media"
)

func audioQuery(topK int, threshold float64, vec ...float32) QueryParams {
	return QueryParams{
		Vector:       vec,
		Modality:     media.ModalityAudio,
		ModelVersion: testModel,
		TopK:         topK,
		Threshold:    threshold,
	}
}

func TestQuery_OrderingThresholdAndTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: audio files with known scores against (1, 0)
	scores := []float32{0.2, 0.9, 0.5, 0.9, -0.3}
	ids := make([]int64, len(scores))
	for i, sc := range scores {
		p := fmt.Sprintf("/media/%d.mp3", i)
		id, err := s.Upsert(ctx, testFile(p, p), testEmbedding(sc, 1))
		require.NoError(t, err)
		ids[i] = id
	}
	// And: a video file that must never match an audio query
	_, err := s.Upsert(ctx, testFile("/media/v.mp4", "v"), testEmbedding(5, 0))
	require.NoError(t, err)

	tests := []struct {
		name      string
		topK      int
		threshold float64
		want      []int64
	}{
		{name: "all above zero", topK: 10, threshold: 0, want: []int64{ids[1], ids[3], ids[2], ids[0]}},
		{name: "ties broken by id", topK: 2, threshold: 0, want: []int64{ids[1], ids[3]}},
		{name: "threshold cuts", topK: 10, threshold: 0.5, want: []int64{ids[1], ids[3], ids[2]}},
		{name: "nothing above threshold", topK: 10, threshold: 1.5, want: nil},
		{name: "zero topK", topK: 0, threshold: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := s.Query(ctx, audioQuery(tt.topK, tt.threshold, 1, 0))
			require.NoError(t, err)

			var got []int64
			for _, m := range matches {
				got = append(got, m.File.ID)
				assert.GreaterOrEqual(t, m.Score, tt.threshold)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_DeletedFilesAreAnnotatedNotHidden(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: an indexed file that is then deleted from disk
	id, err := s.Upsert(ctx, testFile("/media/a.mp3", "h1"), testEmbedding(1, 0))
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, "/media/a.mp3")
	require.NoError(t, err)

	// When: a query matches its embedding
	matches, err := s.Query(ctx, audioQuery(5, 0, 1, 0))
	require.NoError(t, err)

	// Then: it is still returned, flagged deleted
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].File.ID)
	assert.True(t, matches[0].File.Deleted)
}

func TestQuery_ExcludeFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Upsert(ctx, testFile("/media/a.mp3", "a"), testEmbedding(1, 0))
	require.NoError(t, err)
	b, err := s.Upsert(ctx, testFile("/media/b.mp3", "b"), testEmbedding(0.5, 0))
	require.NoError(t, err)

	p := audioQuery(5, 0, 1, 0)
	p.ExcludeFileID = a
	matches, err := s.Query(ctx, p)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, b, matches[0].File.ID)
}

func TestQuery_OtherModelVersionIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, testFile("/media/a.mp3", "a"), &Embedding{ModelVersion: "v0", Vector: []float32{1}})
	require.NoError(t, err)

	matches, err := s.Query(ctx, audioQuery(5, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_OtherDimensionsIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: one vector from before the embedding size changed and one after
	_, err := s.Upsert(ctx, testFile("/media/old.mp3", "o"), testEmbedding(1, 0, 0))
	require.NoError(t, err)
	current, err := s.Upsert(ctx, testFile("/media/new.mp3", "n"), testEmbedding(0.5, 0))
	require.NoError(t, err)

	// When: querying with the current size
	matches, err := s.Query(ctx, audioQuery(5, 0, 1, 0))
	require.NoError(t, err)

	// Then: only the vector of matching length is scored
	require.Len(t, matches, 1)
	assert.Equal(t, current, matches[0].File.ID)
	assert.InDelta(t, 0.5, matches[0].Score, 1e-6)
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 3.0, dot([]float32{1, 2, 9}, []float32{3}), 1e-9)
}

func TestEmbeddingBytesRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := bytesToEmbedding(embeddingToBytes(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = bytesToEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

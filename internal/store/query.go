package store

import (
	"container/heap"
	"context"
	"sort"
)

// Query scores every current embedding of the requested modality and model
// version against the query vector and returns the best TopK at or above the
// threshold, ordered by score descending then file id ascending.
//
// Soft-deleted files are returned with Deleted set. Embeddings whose hash no
// longer matches their file, embeddings of another length than the query,
// and files whose last indexing failed, are never candidates.
func (s *Store) Query(ctx context.Context, p QueryParams) ([]Match, error) {
	if p.TopK <= 0 || len(p.Vector) == 0 {
		return nil, nil
	}

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT `+fileColumnsF+`, e.vector
		FROM embeddings e
		JOIN media_files f ON f.id = e.file_id
		WHERE e.modality = ?
			AND e.model_version = ?
			AND e.content_hash = f.content_hash
			AND e.dimensions = ?
			AND f.status <> 'failed'
			AND f.id <> ?`,
		p.Modality.String(), p.ModelVersion, len(p.Vector), p.ExcludeFileID)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	top := make(matchHeap, 0, p.TopK)
	for rows.Next() {
		var blob []byte
		f, err := scanFile(rows, &blob)
		if err != nil {
			return nil, classify("query", err)
		}
		vec, err := bytesToEmbedding(blob)
		if err != nil {
			return nil, classify("query", err)
		}

		score := dot(p.Vector, vec)
		if score < p.Threshold {
			continue
		}

		m := Match{File: *f, Score: score}
		if len(top) < p.TopK {
			heap.Push(&top, m)
			continue
		}
		if better(m, top[0]) {
			top[0] = m
			heap.Fix(&top, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}

	out := []Match(top)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out, nil
}

// better orders matches by score descending, then file id ascending.
func better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.File.ID < b.File.ID
}

// matchHeap keeps the worst retained match at the root.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) { *h = append(*h, x.(Match)) }

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

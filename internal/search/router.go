package search

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"docvault/api/internal/store"
)

// ChunkSource reads the tenant's chunk rows from the system of record.
type ChunkSource interface {
	FindChunksByTenant(ctx context.Context, tenantID string) ([]store.Chunk, error)
}

// Router runs the two independent sub-searches over the source store.
type Router struct {
	source ChunkSource
}

func NewRouter(source ChunkSource) *Router {
	return &Router{source: source}
}

// Search runs both sub-searches concurrently with the same candidate cap.
func (r *Router) Search(ctx context.Context, query, tenantID string, limit int) (keyword, vector []Result, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var kerr error
		keyword, kerr = r.KeywordSearch(gctx, query, tenantID, limit)
		return kerr
	})
	g.Go(func() error {
		var verr error
		vector, verr = r.VectorSearch(gctx, query, tenantID, limit)
		return verr
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return keyword, vector, nil
}

// KeywordSearch matches the query as a case-insensitive substring of chunk
// content. No ranking is applied beyond store iteration order, so ties are
// broken arbitrarily but stably.
func (r *Router) KeywordSearch(ctx context.Context, query, tenantID string, limit int) ([]Result, error) {
	normalized := strings.ToLower(query)
	chunks, err := r.source.FindChunksByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	max := maxLimit(limit)
	var results []Result
	for _, chunk := range chunks {
		if !strings.Contains(strings.ToLower(chunk.Content), normalized) {
			continue
		}
		results = append(results, mapChunk(chunk))
		if len(results) >= max {
			break
		}
	}
	return results, nil
}

// VectorSearch is the placeholder relevance signal standing in for embedding
// similarity: score = matched query terms / total query terms, in (0, 1].
// Chunks scoring zero are excluded.
func (r *Router) VectorSearch(ctx context.Context, query, tenantID string, limit int) ([]Result, error) {
	terms := strings.Fields(strings.ToLower(query))
	chunks, err := r.source.FindChunksByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, chunk := range chunks {
		text := strings.ToLower(chunk.Content)
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits == 0 || len(terms) == 0 {
			continue
		}
		result := mapChunk(chunk)
		result.Score = float64(hits) / float64(len(terms))
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if max := maxLimit(limit); len(results) > max {
		results = results[:max]
	}
	return results, nil
}

func mapChunk(chunk store.Chunk) Result {
	return Result{
		ChunkID:    chunk.ID,
		DocumentID: chunk.DocumentID,
		Sequence:   chunk.Sequence,
		Content:    chunk.Content,
		TokenCount: chunk.TokenCount,
		Score:      1.0,
		CreatedAt:  chunk.CreatedAt,
	}
}

// maxLimit applies the floor of 1 every capped list in the pipeline uses.
func maxLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

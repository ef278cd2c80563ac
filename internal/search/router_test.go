package search

import (
	"context"
	"testing"

	"docvault/api/internal/store"
)

func seedChunks(t *testing.T, contents ...string) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for i, content := range contents {
		_, err := s.CreateChunk(context.Background(), store.Chunk{
			TenantID:   "tenant_a",
			DocumentID: "doc_1",
			Sequence:   i,
			Content:    content,
		})
		if err != nil {
			t.Fatalf("CreateChunk() error = %v", err)
		}
	}
	return s
}

func TestKeywordSearchSubstringMatch(t *testing.T) {
	s := seedChunks(t,
		"The quarterly revenue report",
		"Unrelated onboarding notes",
		"REVENUE projections for next year",
	)
	router := NewRouter(s)

	results, err := router.KeywordSearch(context.Background(), "revenue", "tenant_a", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("KeywordSearch() returned %d results, want 2", len(results))
	}
	// Iteration order, not relevance: first inserted match comes first.
	if results[0].Sequence != 0 || results[1].Sequence != 2 {
		t.Fatalf("unexpected order: %+v", results)
	}
}

func TestKeywordSearchStopsAtLimit(t *testing.T) {
	s := seedChunks(t, "alpha beta", "alpha gamma", "alpha delta")
	router := NewRouter(s)

	results, err := router.KeywordSearch(context.Background(), "alpha", "tenant_a", 2)
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("KeywordSearch() returned %d results, want 2", len(results))
	}
}

func TestVectorSearchScoresByTermCoverage(t *testing.T) {
	s := seedChunks(t,
		"database migration guide",       // 2 of 2 terms
		"migration checklist",            // 1 of 2 terms
		"completely unrelated content",   // 0 terms, excluded
	)
	router := NewRouter(s)

	results, err := router.VectorSearch(context.Background(), "database migration", "tenant_a", 10)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("VectorSearch() returned %d results, want 2", len(results))
	}
	if !almostEqual(results[0].Score, 1.0) {
		t.Fatalf("top score = %v, want 1.0", results[0].Score)
	}
	if !almostEqual(results[1].Score, 0.5) {
		t.Fatalf("second score = %v, want 0.5", results[1].Score)
	}
}

func TestVectorSearchEmptyQueryYieldsNothing(t *testing.T) {
	s := seedChunks(t, "anything at all")
	router := NewRouter(s)

	results, err := router.VectorSearch(context.Background(), "   ", "tenant_a", 10)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("VectorSearch() returned %d results, want 0", len(results))
	}
}

func TestRouterIsolatesTenants(t *testing.T) {
	s := store.NewMemoryStore()
	for _, chunk := range []store.Chunk{
		{TenantID: "tenant_a", DocumentID: "doc_1", Content: "shared phrase"},
		{TenantID: "tenant_b", DocumentID: "doc_2", Content: "shared phrase"},
	} {
		if _, err := s.CreateChunk(context.Background(), chunk); err != nil {
			t.Fatalf("CreateChunk() error = %v", err)
		}
	}
	router := NewRouter(s)

	keyword, vector, err := router.Search(context.Background(), "shared phrase", "tenant_a", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(keyword) != 1 || len(vector) != 1 {
		t.Fatalf("got %d keyword and %d vector results, want 1 and 1", len(keyword), len(vector))
	}
	if keyword[0].DocumentID != "doc_1" {
		t.Fatalf("cross-tenant result leaked: %+v", keyword[0])
	}
}

package indexing

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"docvault/api/internal/index"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

type countingEvictor struct {
	calls int
}

func (c *countingEvictor) EvictCache(context.Context) error {
	c.calls++
	return nil
}

func seedChunk(t *testing.T, s *store.MemoryStore, chunkID string) {
	t.Helper()
	_, err := s.CreateChunk(context.Background(), store.Chunk{
		ID:         chunkID,
		TenantID:   "tenant_a",
		DocumentID: "doc_1",
		Content:    "content of " + chunkID,
	})
	if err != nil {
		t.Fatalf("CreateChunk() error = %v", err)
	}
}

func seedRecord(t *testing.T, idx *index.Memory, chunkID string) {
	t.Helper()
	err := idx.Upsert(context.Background(), index.Record{
		ChunkID:    chunkID,
		TenantID:   "tenant_a",
		DocumentID: "doc_1",
		Content:    "content of " + chunkID,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func newDriftFixture(t *testing.T) (*store.MemoryStore, *index.Memory, *countingEvictor, *DriftService) {
	t.Helper()
	s := store.NewMemoryStore()
	idx := index.NewMemory()
	evictor := &countingEvictor{}
	resolver := tenant.Resolver{DefaultTenantID: "tenant_a"}
	indexer := NewService(s, s, idx, resolver, zap.NewNop())
	drift := NewDriftService(s, idx, indexer, evictor, zap.NewNop())
	return s, idx, evictor, drift
}

func TestAnalyzeDriftCountsBothDirections(t *testing.T) {
	s, idx, _, drift := newDriftFixture(t)
	// Source holds 1,2,3; index holds 2,3,4.
	for _, id := range []string{"chk_1", "chk_2", "chk_3"} {
		seedChunk(t, s, id)
	}
	for _, id := range []string{"chk_2", "chk_3", "chk_4"} {
		seedRecord(t, idx, id)
	}

	report, err := drift.AnalyzeDrift(context.Background(), "tenant_a")
	if err != nil {
		t.Fatalf("AnalyzeDrift() error = %v", err)
	}
	want := DriftReport{SourceChunks: 3, IndexedChunks: 3, MissingInIndex: 1, OrphanedInIndex: 1}
	if report != want {
		t.Fatalf("AnalyzeDrift() = %+v, want %+v", report, want)
	}
}

func TestAnalyzeDriftAlignedSetsReportZero(t *testing.T) {
	s, idx, _, drift := newDriftFixture(t)
	for _, id := range []string{"chk_1", "chk_2"} {
		seedChunk(t, s, id)
		seedRecord(t, idx, id)
	}

	report, err := drift.AnalyzeDrift(context.Background(), "tenant_a")
	if err != nil {
		t.Fatalf("AnalyzeDrift() error = %v", err)
	}
	if report.MissingInIndex != 0 || report.OrphanedInIndex != 0 {
		t.Fatalf("aligned sets reported drift: %+v", report)
	}
}

func TestReconcileDriftHealsMissingAndLeavesOrphans(t *testing.T) {
	s, idx, evictor, drift := newDriftFixture(t)
	for _, id := range []string{"chk_1", "chk_2", "chk_3"} {
		seedChunk(t, s, id)
	}
	for _, id := range []string{"chk_2", "chk_3", "chk_4"} {
		seedRecord(t, idx, id)
	}

	report, err := drift.ReconcileDrift(context.Background(), "tenant_a")
	if err != nil {
		t.Fatalf("ReconcileDrift() error = %v", err)
	}
	if report.MissingInIndex != 0 {
		t.Fatalf("missing after reconcile = %d, want 0", report.MissingInIndex)
	}
	// Orphans are not removed; they stay visible in the fresh report.
	if report.OrphanedInIndex != 1 {
		t.Fatalf("orphaned after reconcile = %d, want 1", report.OrphanedInIndex)
	}
	if report.SourceChunks != 3 || report.IndexedChunks != 4 {
		t.Fatalf("unexpected counts after reconcile: %+v", report)
	}
	if evictor.calls != 1 {
		t.Fatalf("cache evicted %d times, want 1", evictor.calls)
	}
}

func TestReconcileDriftEmptyTenantStillEvicts(t *testing.T) {
	_, _, evictor, drift := newDriftFixture(t)

	report, err := drift.ReconcileDrift(context.Background(), "tenant_a")
	if err != nil {
		t.Fatalf("ReconcileDrift() error = %v", err)
	}
	if report != (DriftReport{}) {
		t.Fatalf("empty tenant report = %+v, want zero report", report)
	}
	if evictor.calls != 1 {
		t.Fatalf("cache evicted %d times, want 1", evictor.calls)
	}
}

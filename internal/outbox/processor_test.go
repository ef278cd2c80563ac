package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"docvault/api/internal/index"
	"docvault/api/internal/indexing"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

// stubIndexer fails or records applications per entity.
type stubIndexer struct {
	failDocuments map[string]bool
	indexed       []string
	deleted       []string
}

func (s *stubIndexer) IndexChunk(_ context.Context, chunk store.Chunk) error {
	if s.failDocuments[chunk.DocumentID] {
		return errors.New("index unavailable")
	}
	s.indexed = append(s.indexed, chunk.ID)
	return nil
}

func (s *stubIndexer) DeleteEntityFromIndex(_ context.Context, entityID string) error {
	if s.failDocuments[entityID] {
		return errors.New("index unavailable")
	}
	s.deleted = append(s.deleted, entityID)
	return nil
}

func enqueue(t *testing.T, s *store.MemoryStore, entityID, action string) store.OutboxEvent {
	t.Helper()
	event, err := s.EnqueueOutboxEvent(context.Background(), store.EnqueueEventParams{
		TenantID:   "tenant_a",
		EntityType: "DOCUMENT",
		EntityID:   entityID,
		Action:     action,
	})
	if err != nil {
		t.Fatalf("EnqueueOutboxEvent() error = %v", err)
	}
	return event
}

func seedChunk(t *testing.T, s *store.MemoryStore, chunkID, documentID string) {
	t.Helper()
	_, err := s.CreateChunk(context.Background(), store.Chunk{
		ID:         chunkID,
		TenantID:   "tenant_a",
		DocumentID: documentID,
		Content:    "content of " + chunkID,
	})
	if err != nil {
		t.Fatalf("CreateChunk() error = %v", err)
	}
}

func TestRunOnceProcessesPendingEvents(t *testing.T) {
	s := store.NewMemoryStore()
	seedChunk(t, s, "chk_1", "doc_1")
	seedChunk(t, s, "chk_2", "doc_1")
	indexer := &stubIndexer{}
	p := NewProcessor(s, s, indexer, Options{}, zap.NewNop())

	event := enqueue(t, s, "doc_1", store.ActionUpsert)
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(indexer.indexed) != 2 {
		t.Fatalf("indexed %d chunks, want 2", len(indexer.indexed))
	}
	got, err := s.GetOutboxEvent(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("GetOutboxEvent() error = %v", err)
	}
	if got.ProcessedAt == nil {
		t.Fatal("event not marked processed")
	}
	pending, _ := s.ListPendingEvents(context.Background())
	if len(pending) != 0 {
		t.Fatalf("%d events still pending, want 0", len(pending))
	}
}

func TestRunOnceDispatchesDelete(t *testing.T) {
	s := store.NewMemoryStore()
	indexer := &stubIndexer{}
	p := NewProcessor(s, s, indexer, Options{}, zap.NewNop())

	enqueue(t, s, "doc_gone", store.ActionDelete)
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(indexer.deleted) != 1 || indexer.deleted[0] != "doc_gone" {
		t.Fatalf("deleted = %v, want [doc_gone]", indexer.deleted)
	}
	if len(indexer.indexed) != 0 {
		t.Fatalf("delete event indexed chunks: %v", indexer.indexed)
	}
}

func TestFailureBacksOffAndEventuallyDeadLetters(t *testing.T) {
	s := store.NewMemoryStore()
	seedChunk(t, s, "chk_1", "doc_1")
	indexer := &stubIndexer{failDocuments: map[string]bool{"doc_1": true}}
	p := NewProcessor(s, s, indexer, Options{}, zap.NewNop())

	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return base })

	event := enqueue(t, s, "doc_1", store.ActionUpsert)
	ctx := context.Background()

	for attempt := 1; attempt < store.DefaultMaxRetries; attempt++ {
		if err := p.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() #%d error = %v", attempt, err)
		}
		got, _ := s.GetOutboxEvent(ctx, event.ID)
		if got.RetryCount != attempt {
			t.Fatalf("after attempt %d: retryCount = %d", attempt, got.RetryCount)
		}
		if got.DeadLettered {
			t.Fatalf("dead-lettered after %d attempts, budget is %d", attempt, store.DefaultMaxRetries)
		}
		wantNext := base.Add(time.Duration(attempt) * 10 * time.Second)
		if got.NextRetryAt == nil || !got.NextRetryAt.Equal(wantNext) {
			t.Fatalf("after attempt %d: nextRetryAt = %v, want %v", attempt, got.NextRetryAt, wantNext)
		}
	}

	// The final attempt of the budget dead-letters the event.
	if err := p.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() final error = %v", err)
	}
	got, _ := s.GetOutboxEvent(ctx, event.ID)
	if !got.DeadLettered {
		t.Fatal("event not dead-lettered after exhausting retries")
	}
	if got.ProcessedAt != nil {
		t.Fatal("dead-lettered event marked processed")
	}
	pending, _ := s.ListPendingEvents(ctx)
	if len(pending) != 0 {
		t.Fatalf("dead-lettered event still pending: %d", len(pending))
	}
	dead, _ := s.ListDeadLetteredEvents(ctx)
	if len(dead) != 1 {
		t.Fatalf("%d dead-lettered events, want 1", len(dead))
	}
}

func TestBackoffIsCapped(t *testing.T) {
	s := store.NewMemoryStore()
	seedChunk(t, s, "chk_1", "doc_1")
	indexer := &stubIndexer{failDocuments: map[string]bool{"doc_1": true}}
	p := NewProcessor(s, s, indexer, Options{BackoffStep: 10 * time.Second, BackoffCap: 25 * time.Second}, zap.NewNop())

	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return base })

	event := enqueue(t, s, "doc_1", store.ActionUpsert)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	}

	got, _ := s.GetOutboxEvent(ctx, event.ID)
	want := base.Add(25 * time.Second)
	if got.NextRetryAt == nil || !got.NextRetryAt.Equal(want) {
		t.Fatalf("nextRetryAt = %v, want capped %v", got.NextRetryAt, want)
	}
}

func TestFailuresAreIsolatedPerEvent(t *testing.T) {
	s := store.NewMemoryStore()
	seedChunk(t, s, "chk_bad", "doc_bad")
	seedChunk(t, s, "chk_good", "doc_good")
	indexer := &stubIndexer{failDocuments: map[string]bool{"doc_bad": true}}
	p := NewProcessor(s, s, indexer, Options{}, zap.NewNop())

	bad := enqueue(t, s, "doc_bad", store.ActionUpsert)
	good := enqueue(t, s, "doc_good", store.ActionUpsert)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	gotGood, _ := s.GetOutboxEvent(context.Background(), good.ID)
	if gotGood.ProcessedAt == nil {
		t.Fatal("healthy event blocked by failing sibling")
	}
	gotBad, _ := s.GetOutboxEvent(context.Background(), bad.ID)
	if gotBad.ProcessedAt != nil || gotBad.RetryCount != 1 {
		t.Fatalf("failing event state: %+v", gotBad)
	}
}

func TestReplayedEventIsReprocessed(t *testing.T) {
	s := store.NewMemoryStore()
	seedChunk(t, s, "chk_1", "doc_1")
	indexer := &stubIndexer{failDocuments: map[string]bool{"doc_1": true}}
	p := NewProcessor(s, s, indexer, Options{}, zap.NewNop())
	ctx := context.Background()

	event := enqueue(t, s, "doc_1", store.ActionUpsert)
	for i := 0; i < store.DefaultMaxRetries; i++ {
		if err := p.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	}
	got, _ := s.GetOutboxEvent(ctx, event.ID)
	if !got.DeadLettered {
		t.Fatal("precondition: event should be dead-lettered")
	}

	replayed, err := s.ReplayEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("ReplayEvent() error = %v", err)
	}
	if replayed.RetryCount != 0 || replayed.DeadLettered {
		t.Fatalf("replayed event not reset: %+v", replayed)
	}
	pending, _ := s.ListPendingEvents(ctx)
	if len(pending) != 1 {
		t.Fatalf("%d pending events after replay, want 1", len(pending))
	}

	// Index recovered; the replayed event now succeeds.
	indexer.failDocuments = nil
	if err := p.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() after replay error = %v", err)
	}
	got, _ = s.GetOutboxEvent(ctx, event.ID)
	if got.ProcessedAt == nil {
		t.Fatal("replayed event not processed after recovery")
	}
}

func TestProcessorWithRealIndexerProjectsChunks(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := s.CreateDocument(ctx, store.Document{ID: "doc_1", TenantID: "tenant_a", Title: "handbook"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	seedChunk(t, s, "chk_1", "doc_1")
	seedChunk(t, s, "chk_2", "doc_1")

	idx := index.NewMemory()
	resolver := tenant.Resolver{DefaultTenantID: "tenant_a"}
	indexer := indexing.NewService(s, s, idx, resolver, zap.NewNop())
	p := NewProcessor(s, s, indexer, Options{}, zap.NewNop())

	enqueue(t, s, "doc_1", store.ActionUpsert)
	if err := p.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	records, err := idx.ListAll(ctx, "tenant_a")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("%d records indexed, want 2", len(records))
	}
	for _, record := range records {
		if record.DocumentID != "doc_1" || record.SearchType != "indexed" {
			t.Fatalf("unexpected record: %+v", record)
		}
	}
}

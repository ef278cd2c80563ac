package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"docvault/api/internal/util"
)

// MemoryStore is an in-process Store used by tests and local runs. Chunk
// iteration order is insertion order, which the keyword search relies on for
// its (arbitrary but stable) tie-breaking.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    []Chunk
	documents map[string]Document
	groups    map[string]Group
	userGroup []UserGroup
	events    map[string]*OutboxEvent
	eventIDs  []string
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]Document),
		groups:    make(map[string]Group),
		events:    make(map[string]*OutboxEvent),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock; tests use it to control retry
// timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// --- chunks ---

func (s *MemoryStore) FindChunksByDocument(_ context.Context, documentID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindChunksByTenant(_ context.Context, tenantID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Chunk
	for _, c := range s.chunks {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindChunkIDsByTenant(_ context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, c := range s.chunks {
		if c.TenantID == tenantID {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) CreateChunk(_ context.Context, chunk Chunk) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chunk.ID == "" {
		chunk.ID = util.NewID("chk")
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = s.now()
	}
	for i, existing := range s.chunks {
		if existing.ID == chunk.ID {
			modified := s.now()
			chunk.ModifiedAt = &modified
			s.chunks[i] = chunk
			return chunk, nil
		}
	}
	s.chunks = append(s.chunks, chunk)
	return chunk, nil
}

func (s *MemoryStore) DeleteChunksByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

// --- documents ---

func (s *MemoryStore) FindDocumentByID(_ context.Context, tenantID, documentID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[documentID]
	if !ok || doc.TenantID != tenantID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) FindDocumentsByTenant(_ context.Context, tenantID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []Document
	for _, doc := range s.documents {
		if doc.TenantID == tenantID && doc.DeletedAt == nil {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = util.NewID("doc")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	s.documents[doc.ID] = doc
	return doc, nil
}

func (s *MemoryStore) SoftDeleteDocument(_ context.Context, tenantID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok || doc.TenantID != tenantID || doc.DeletedAt != nil {
		return ErrNotFound
	}
	deleted := s.now()
	doc.DeletedAt = &deleted
	s.documents[documentID] = doc
	return nil
}

// --- groups ---

func (s *MemoryStore) CreateGroup(_ context.Context, group Group) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group.ID == "" {
		group.ID = util.NewID("grp")
	}
	s.groups[group.ID] = group
	return group, nil
}

func (s *MemoryStore) AssignUserGroup(_ context.Context, assignment UserGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userGroup = append(s.userGroup, assignment)
	return nil
}

func (s *MemoryStore) GroupsByTenant(_ context.Context, tenantID string) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var groups []Group
	for _, g := range s.groups {
		if g.TenantID == tenantID {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (s *MemoryStore) GroupIDsByUser(_ context.Context, tenantID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, ug := range s.userGroup {
		if ug.TenantID == tenantID && ug.UserID == userID {
			ids = append(ids, ug.GroupID)
		}
	}
	return ids, nil
}

// --- outbox ---

func (s *MemoryStore) EnqueueOutboxEvent(_ context.Context, params EnqueueEventParams) (OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event := OutboxEvent{
		ID:         util.NewID("evt"),
		TenantID:   params.TenantID,
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		Action:     params.Action,
		Payload:    params.Payload,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  s.now(),
	}
	if event.Payload == "" {
		event.Payload = "{}"
	}
	stored := event
	s.events[event.ID] = &stored
	s.eventIDs = append(s.eventIDs, event.ID)
	return event, nil
}

func (s *MemoryStore) GetOutboxEvent(_ context.Context, eventID string) (OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[eventID]
	if !ok {
		return OutboxEvent{}, ErrNotFound
	}
	return *event, nil
}

func (s *MemoryStore) ListPendingEvents(_ context.Context) ([]OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OutboxEvent
	for _, id := range s.eventIDs {
		event := s.events[id]
		if event.Pending() {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListDeadLetteredEvents(_ context.Context) ([]OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OutboxEvent
	for _, id := range s.eventIDs {
		event := s.events[id]
		if event.DeadLettered {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkEventProcessed(_ context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	processed := at
	event.ProcessedAt = &processed
	return nil
}

func (s *MemoryStore) MarkEventFailed(_ context.Context, eventID string, retryCount int, nextRetryAt time.Time, deadLettered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	event.RetryCount = retryCount
	next := nextRetryAt
	event.NextRetryAt = &next
	event.DeadLettered = deadLettered
	return nil
}

func (s *MemoryStore) ReplayEvent(_ context.Context, eventID string) (OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok || event.ProcessedAt != nil {
		return OutboxEvent{}, ErrNotFound
	}
	event.RetryCount = 0
	event.DeadLettered = false
	next := s.now()
	event.NextRetryAt = &next
	return *event, nil
}

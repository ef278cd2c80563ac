// Package indexing translates source chunks into index records and keeps the
// derived index aligned with the system of record.
package indexing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"docvault/api/internal/index"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

// EntityTypeDocument is the only entity type the pipeline indexes today.
const EntityTypeDocument = "DOCUMENT"

// ChunkSource reads chunk rows from the system of record.
type ChunkSource interface {
	FindChunksByDocument(ctx context.Context, documentID string) ([]store.Chunk, error)
}

// EventSink enqueues outbox events. Callers on a write path must hand in a
// sink bound to the same transaction as the source mutation.
type EventSink interface {
	EnqueueOutboxEvent(ctx context.Context, params store.EnqueueEventParams) (store.OutboxEvent, error)
}

// Service applies individual index mutations.
type Service struct {
	chunks   ChunkSource
	events   EventSink
	client   index.Client
	resolver tenant.Resolver
	log      *zap.Logger
}

func NewService(chunks ChunkSource, events EventSink, client index.Client, resolver tenant.Resolver, log *zap.Logger) *Service {
	return &Service{chunks: chunks, events: events, client: client, resolver: resolver, log: log}
}

// EnqueueEntityIndex records that the entity needs an index mutation. It is
// the write-path entry point and must run inside the caller's unit of work.
func (s *Service) EnqueueEntityIndex(ctx context.Context, entityID, action string) (store.OutboxEvent, error) {
	id := s.resolver.Resolve(ctx)
	event, err := s.events.EnqueueOutboxEvent(ctx, store.EnqueueEventParams{
		TenantID:   id.TenantID,
		EntityType: EntityTypeDocument,
		EntityID:   entityID,
		Action:     action,
	})
	if err != nil {
		return store.OutboxEvent{}, fmt.Errorf("enqueue %s for %s: %w", action, entityID, err)
	}
	s.log.Debug("outbox event enqueued",
		zap.String("event", event.ID),
		zap.String("entity", entityID),
		zap.String("action", action))
	return event, nil
}

// IndexChunk projects a source chunk into the index. The upsert is
// idempotent; re-indexing an unchanged chunk is a no-op at the index.
func (s *Service) IndexChunk(ctx context.Context, chunk store.Chunk) error {
	record := index.Record{
		ChunkID:    chunk.ID,
		TenantID:   chunk.TenantID,
		DocumentID: chunk.DocumentID,
		Sequence:   chunk.Sequence,
		Content:    chunk.Content,
		TokenCount: chunk.TokenCount,
		Score:      1.0,
		SearchType: "indexed",
		CreatedAt:  chunk.CreatedAt,
	}
	if err := s.client.Upsert(ctx, record); err != nil {
		return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// DeleteEntityFromIndex removes the entity's chunks from the index, driven
// by the chunk rows still present in the source store. If those rows are
// already gone nothing is deleted here; drift reconciliation is the
// backstop for that gap.
func (s *Service) DeleteEntityFromIndex(ctx context.Context, entityID string) error {
	chunks, err := s.chunks.FindChunksByDocument(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load chunks for delete of %s: %w", entityID, err)
	}
	for _, chunk := range chunks {
		if err := s.client.DeleteByID(ctx, chunk.ID); err != nil {
			return fmt.Errorf("delete chunk %s from index: %w", chunk.ID, err)
		}
	}
	return nil
}

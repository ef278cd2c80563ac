// Package index defines the client boundary to the external search store and
// its implementations. The index holds a derived, rebuildable projection of
// source chunks; it is never the system of record.
package index

import (
	"context"
	"time"
)

// Record is the index-side projection of a source chunk. Score is meaningful
// only transiently during a query, not at rest; freshly indexed records carry
// the sentinel score 1.0 and search type "indexed".
type Record struct {
	ChunkID    string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	DocumentID string    `json:"documentId"`
	Sequence   int       `json:"sequenceNumber"`
	Content    string    `json:"content"`
	TokenCount int       `json:"tokenCount"`
	Score      float64   `json:"relevanceScore"`
	SearchType string    `json:"searchType"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Client is the narrow contract the pipeline has with the external search
// store. Upsert and DeleteByID must be idempotent: the outbox processor
// relies on that to make duplicate application safe.
type Client interface {
	Upsert(ctx context.Context, record Record) error
	DeleteByID(ctx context.Context, chunkID string) error
	Query(ctx context.Context, tenantID, term string, limit int) ([]Record, error)
	ListAll(ctx context.Context, tenantID string) ([]Record, error)
}

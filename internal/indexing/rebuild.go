package indexing

import (
	"context"
	"fmt"

	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

// DocumentSource lists the tenant's live documents.
type DocumentSource interface {
	FindDocumentsByTenant(ctx context.Context, tenantID string) ([]store.Document, error)
}

// RebuildService enqueues a full re-index of the caller's tenant through the
// outbox, so a rebuild gets the same retry and dead-letter guarantees as any
// other index mutation.
type RebuildService struct {
	documents DocumentSource
	indexer   *Service
	resolver  tenant.Resolver
}

func NewRebuildService(documents DocumentSource, indexer *Service, resolver tenant.Resolver) *RebuildService {
	return &RebuildService{documents: documents, indexer: indexer, resolver: resolver}
}

// RebuildTenantIndex enqueues an upsert event for every live document and
// returns how many were enqueued.
func (r *RebuildService) RebuildTenantIndex(ctx context.Context) (int, error) {
	id := r.resolver.Resolve(ctx)
	documents, err := r.documents.FindDocumentsByTenant(ctx, id.TenantID)
	if err != nil {
		return 0, fmt.Errorf("list documents for rebuild: %w", err)
	}
	for _, doc := range documents {
		if _, err := r.indexer.EnqueueEntityIndex(ctx, doc.ID, store.ActionUpsert); err != nil {
			return 0, err
		}
	}
	return len(documents), nil
}

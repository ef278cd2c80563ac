package indexing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"docvault/api/internal/index"
	"docvault/api/internal/store"
)

// DriftReport counts the divergence between the source chunk set and the
// indexed set for one tenant at one point in time.
type DriftReport struct {
	SourceChunks    int `json:"sourceChunks"`
	IndexedChunks   int `json:"indexedChunks"`
	MissingInIndex  int `json:"missingInIndex"`
	OrphanedInIndex int `json:"orphanedInIndex"`
}

// TenantChunkSource reads the full per-tenant chunk set. Both calls load
// the whole set into memory; acceptable at current tenant sizes.
type TenantChunkSource interface {
	FindChunkIDsByTenant(ctx context.Context, tenantID string) ([]string, error)
	FindChunksByTenant(ctx context.Context, tenantID string) ([]store.Chunk, error)
}

// CacheEvictor invalidates the search cache wholesale.
type CacheEvictor interface {
	EvictCache(ctx context.Context) error
}

// DriftService detects and repairs divergence between the system of record
// and the external index.
type DriftService struct {
	source  TenantChunkSource
	client  index.Client
	indexer *Service
	cache   CacheEvictor
	log     *zap.Logger
}

func NewDriftService(source TenantChunkSource, client index.Client, indexer *Service, cache CacheEvictor, log *zap.Logger) *DriftService {
	return &DriftService{source: source, client: client, indexer: indexer, cache: cache, log: log}
}

// AnalyzeDrift compares source and indexed chunk ids. Pure read, no side
// effects.
func (d *DriftService) AnalyzeDrift(ctx context.Context, tenantID string) (DriftReport, error) {
	sourceIDs, err := d.source.FindChunkIDsByTenant(ctx, tenantID)
	if err != nil {
		return DriftReport{}, fmt.Errorf("load source chunk ids: %w", err)
	}
	indexed, err := d.client.ListAll(ctx, tenantID)
	if err != nil {
		return DriftReport{}, fmt.Errorf("list indexed chunks: %w", err)
	}

	sourceSet := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		sourceSet[id] = true
	}
	indexSet := make(map[string]bool, len(indexed))
	for _, record := range indexed {
		indexSet[record.ChunkID] = true
	}

	report := DriftReport{
		SourceChunks:  len(sourceSet),
		IndexedChunks: len(indexSet),
	}
	for id := range sourceSet {
		if !indexSet[id] {
			report.MissingInIndex++
		}
	}
	for id := range indexSet {
		if !sourceSet[id] {
			report.OrphanedInIndex++
		}
	}
	return report, nil
}

// ReconcileDrift re-indexes every source chunk for the tenant, evicts the
// search cache, and returns a fresh report. The idempotent upserts heal
// missing entries; orphaned index entries are left in place and still show
// up in the returned report. Any failure aborts the whole reconciliation;
// the operator retries it as a unit.
func (d *DriftService) ReconcileDrift(ctx context.Context, tenantID string) (DriftReport, error) {
	chunks, err := d.source.FindChunksByTenant(ctx, tenantID)
	if err != nil {
		return DriftReport{}, fmt.Errorf("load source chunks: %w", err)
	}
	for _, chunk := range chunks {
		if err := d.indexer.IndexChunk(ctx, chunk); err != nil {
			return DriftReport{}, fmt.Errorf("reconcile tenant %s: %w", tenantID, err)
		}
	}
	if err := d.cache.EvictCache(ctx); err != nil {
		return DriftReport{}, fmt.Errorf("evict search cache: %w", err)
	}
	d.log.Info("drift reconciliation complete",
		zap.String("tenant", tenantID),
		zap.Int("chunks", len(chunks)))
	return d.AnalyzeDrift(ctx, tenantID)
}

package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	idxChunks = "docvault_chunks"

	listPageSize = 1000
)

// Meili is the production Client backed by Meilisearch. The store is
// eventually consistent: writes are accepted as async tasks, which is exactly
// the drift the reconciler exists to repair.
type Meili struct {
	client  meili.ServiceManager
	log     *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates the client and configures the chunk index. The client
// starts unhealthy if the initial connection fails and recovers via the
// background health loop.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		log.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxChunks,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug("create index (may already exist)", zap.Error(err))
	}

	idx := m.client.Index(idxChunks)
	filterable := []interface{}{"tenantId", "documentId"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"content"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Upsert(_ context.Context, record Record) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	if _, err := m.client.Index(idxChunks).AddDocuments([]Record{record}, nil); err != nil {
		return fmt.Errorf("meilisearch upsert %s: %w", record.ChunkID, err)
	}
	return nil
}

func (m *Meili) DeleteByID(_ context.Context, chunkID string) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	if _, err := m.client.Index(idxChunks).DeleteDocument(chunkID, nil); err != nil {
		return fmt.Errorf("meilisearch delete %s: %w", chunkID, err)
	}
	return nil
}

func (m *Meili) Query(_ context.Context, tenantID, term string, limit int) ([]Record, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit < 1 {
		limit = 1
	}
	resp, err := m.client.Index(idxChunks).Search(term, &meili.SearchRequest{
		Limit:  int64(limit),
		Filter: []string{fmt.Sprintf("tenantId = %q", tenantID)},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch query: %w", err)
	}
	return decodeHits(resp.Hits)
}

// ListAll pages through the tenant's records with an empty query. Used by
// drift analysis, which needs the complete indexed set.
func (m *Meili) ListAll(_ context.Context, tenantID string) ([]Record, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	var out []Record
	for offset := int64(0); ; offset += listPageSize {
		resp, err := m.client.Index(idxChunks).Search("", &meili.SearchRequest{
			Limit:  listPageSize,
			Offset: offset,
			Filter: []string{fmt.Sprintf("tenantId = %q", tenantID)},
		})
		if err != nil {
			m.healthy.Store(false)
			return nil, fmt.Errorf("meilisearch list: %w", err)
		}
		page, err := decodeHits(resp.Hits)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if int64(len(resp.Hits)) < listPageSize {
			return out, nil
		}
	}
}

func decodeHits(hits []meili.Hit) ([]Record, error) {
	records := make([]Record, 0, len(hits))
	for _, hit := range hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			return nil, fmt.Errorf("marshal hit: %w", err)
		}
		var record Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode hit: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"docvault/api/internal/audit"
	"docvault/api/internal/authz"
	"docvault/api/internal/metrics"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

// DocumentSource looks up owning documents for access checks.
type DocumentSource interface {
	FindDocumentByID(ctx context.Context, tenantID, documentID string) (store.Document, error)
}

// Options tune the fusion. Zero values fall back to the defaults.
type Options struct {
	KeywordWeight float64
	VectorWeight  float64
	MaxCandidates int
}

func (o Options) withDefaults() Options {
	if o.KeywordWeight == 0 && o.VectorWeight == 0 {
		o.KeywordWeight = 0.4
		o.VectorWeight = 0.6
	}
	if o.MaxCandidates < 1 {
		o.MaxCandidates = 100
	}
	return o
}

// Service orchestrates the read path: route, merge, trim, fall back,
// paginate, audit, cache.
type Service struct {
	router     *Router
	documents  DocumentSource
	authorizer authz.Authorizer
	auditor    audit.Logger
	cache      *Cache // nil disables caching
	resolver   tenant.Resolver
	opts       Options
	log        *zap.Logger
}

func NewService(
	router *Router,
	documents DocumentSource,
	authorizer authz.Authorizer,
	auditor audit.Logger,
	cache *Cache,
	resolver tenant.Resolver,
	opts Options,
	log *zap.Logger,
) *Service {
	return &Service{
		router:     router,
		documents:  documents,
		authorizer: authorizer,
		auditor:    auditor,
		cache:      cache,
		resolver:   resolver,
		opts:       opts.withDefaults(),
		log:        log,
	}
}

// HybridSearch serves one ranked, security-trimmed page for the query.
// Pagination is applied after full fusion, not pushed down to either
// sub-search.
func (s *Service) HybridSearch(ctx context.Context, query string, page PageRequest) (PagedResult, error) {
	started := time.Now()
	if strings.TrimSpace(query) == "" {
		metrics.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return PagedResult{}, ErrEmptyQuery
	}

	id := s.resolver.Resolve(ctx)
	page = page.Normalize()

	compute := func() (*PagedResult, error) {
		result, err := s.search(ctx, id, query, page)
		if err != nil {
			return nil, err
		}
		return &result, nil
	}

	var (
		result *PagedResult
		err    error
	)
	if s.cache != nil {
		result, _, err = s.cache.GetOrCompute(ctx, s.cache.Key(id.TenantID, id.UserID, query, page), compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return PagedResult{}, err
	}

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SearchRequestDuration.Observe(time.Since(started).Seconds())
	return *result, nil
}

func (s *Service) search(ctx context.Context, id tenant.Identity, query string, page PageRequest) (PagedResult, error) {
	keyword, vector, err := s.router.Search(ctx, query, id.TenantID, s.opts.MaxCandidates)
	if err != nil {
		return PagedResult{}, fmt.Errorf("sub-searches: %w", err)
	}

	merged := Merge(keyword, vector, s.opts.KeywordWeight, s.opts.VectorWeight, s.opts.MaxCandidates)

	secured := TrimByAllowedDocuments(merged, s.allowedDocuments(ctx, id.TenantID, merged))
	if len(secured) == 0 {
		secured = Fallback(query)
	}

	start := page.Offset()
	end := start + page.Size
	if end > len(secured) {
		end = len(secured)
	}
	paged := []Result{}
	if start < len(secured) {
		paged = secured[start:end]
	}

	s.auditor.LogSearch(ctx, query, len(paged))
	s.log.Info("hybrid search completed",
		zap.String("tenant", id.TenantID),
		zap.String("user", id.UserID),
		zap.String("query", query),
		zap.Int("results", len(paged)))

	return PagedResult{
		Results:      paged,
		Page:         page.Page,
		Size:         page.Size,
		TotalResults: len(secured),
		Query:        query,
	}, nil
}

// allowedDocuments checks access once per distinct document id in the merged
// candidates. A failed lookup counts as denial; errors never propagate out
// of the access computation.
func (s *Service) allowedDocuments(ctx context.Context, tenantID string, merged []Result) map[string]bool {
	allowed := make(map[string]bool)
	checked := make(map[string]bool)
	for _, result := range merged {
		if result.DocumentID == "" || checked[result.DocumentID] {
			continue
		}
		checked[result.DocumentID] = true
		doc, err := s.documents.FindDocumentByID(ctx, tenantID, result.DocumentID)
		if err != nil {
			continue
		}
		if s.authorizer.CanAccessDocument(ctx, doc) {
			allowed[result.DocumentID] = true
		}
	}
	return allowed
}

// EvictCache drops every cached response. The reconciler calls this after a
// re-index.
func (s *Service) EvictCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.EvictCache(ctx)
}

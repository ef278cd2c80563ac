// Package app exposes the pipeline to HTTP callers: the search endpoint for
// users and the drift/outbox endpoints for operators.
package app

import (
	"context"
	"errors"
	"net/http"

	"docvault/api/internal/authz"
	"docvault/api/internal/indexing"
	"docvault/api/internal/search"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
	"docvault/api/internal/util"
)

// OutboxAdmin covers the operator surface of the outbox store.
type OutboxAdmin interface {
	ListDeadLetteredEvents(ctx context.Context) ([]store.OutboxEvent, error)
	ReplayEvent(ctx context.Context, eventID string) (store.OutboxEvent, error)
}

// Service is the application façade behind the HTTP layer.
type Service struct {
	search   *search.Service
	drift    *indexing.DriftService
	rebuild  *indexing.RebuildService
	outbox   OutboxAdmin
	resolver tenant.Resolver
	ready    func(ctx context.Context) error
}

func NewService(
	searchSvc *search.Service,
	drift *indexing.DriftService,
	rebuild *indexing.RebuildService,
	outbox OutboxAdmin,
	resolver tenant.Resolver,
	ready func(ctx context.Context) error,
) *Service {
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	return &Service{
		search:   searchSvc,
		drift:    drift,
		rebuild:  rebuild,
		outbox:   outbox,
		resolver: resolver,
		ready:    ready,
	}
}

func (s *Service) Search(ctx context.Context, query string, page search.PageRequest) (search.PagedResult, error) {
	result, err := s.search.HybridSearch(ctx, query, page)
	if errors.Is(err, search.ErrEmptyQuery) {
		return search.PagedResult{}, domainError(http.StatusBadRequest, "EMPTY_QUERY", "Search query cannot be empty")
	}
	if err != nil {
		return search.PagedResult{}, err
	}
	return result, nil
}

func (s *Service) DeadLetteredEvents(ctx context.Context) ([]store.OutboxEvent, error) {
	if err := s.require(ctx, authz.ActionInspectIndex); err != nil {
		return nil, err
	}
	return s.outbox.ListDeadLetteredEvents(ctx)
}

func (s *Service) ReplayEvent(ctx context.Context, eventID string) (store.OutboxEvent, error) {
	if err := s.require(ctx, authz.ActionRepairIndex); err != nil {
		return store.OutboxEvent{}, err
	}
	if !util.HasPrefix(eventID, "evt") {
		return store.OutboxEvent{}, domainError(http.StatusNotFound, "EVENT_NOT_FOUND", "No replayable outbox event with that id")
	}
	event, err := s.outbox.ReplayEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return store.OutboxEvent{}, domainError(http.StatusNotFound, "EVENT_NOT_FOUND", "No replayable outbox event with that id")
	}
	return event, err
}

func (s *Service) AnalyzeDrift(ctx context.Context) (indexing.DriftReport, error) {
	if err := s.require(ctx, authz.ActionInspectIndex); err != nil {
		return indexing.DriftReport{}, err
	}
	id := s.resolver.Resolve(ctx)
	return s.drift.AnalyzeDrift(ctx, id.TenantID)
}

func (s *Service) ReconcileDrift(ctx context.Context) (indexing.DriftReport, error) {
	if err := s.require(ctx, authz.ActionRepairIndex); err != nil {
		return indexing.DriftReport{}, err
	}
	id := s.resolver.Resolve(ctx)
	return s.drift.ReconcileDrift(ctx, id.TenantID)
}

func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	if err := s.require(ctx, authz.ActionRepairIndex); err != nil {
		return 0, err
	}
	return s.rebuild.RebuildTenantIndex(ctx)
}

func (s *Service) Ready(ctx context.Context) error {
	return s.ready(ctx)
}

func (s *Service) require(ctx context.Context, action authz.Action) error {
	if !authz.IdentityCan(s.resolver.Resolve(ctx), action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Operator role required")
	}
	return nil
}

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"docvault/api/internal/audit"
	"docvault/api/internal/authz"
	"docvault/api/internal/index"
	"docvault/api/internal/indexing"
	"docvault/api/internal/search"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) (*store.MemoryStore, http.Handler) {
	t.Helper()
	s := store.NewMemoryStore()
	resolver := tenant.Resolver{DefaultTenantID: "tenant_a"}
	log := zap.NewNop()

	idx := index.NewMemory()
	indexer := indexing.NewService(s, s, idx, resolver, log)
	searchService := search.NewService(
		search.NewRouter(s), s, authz.NewGroupAuthorizer(s, resolver),
		audit.Nop{}, nil, resolver, search.Options{}, log,
	)
	drift := indexing.NewDriftService(s, idx, indexer, searchService, log)
	rebuild := indexing.NewRebuildService(s, indexer, resolver)

	service := NewService(searchService, drift, rebuild, s, resolver, nil)
	return s, NewHTTPServer(service, testSecret, log).Handler()
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := tenant.IssueToken(testSecret, tenant.Claims{
		Sub:    "ops-1",
		Tenant: "tenant_a",
		Roles:  []string{"operator"},
		JTI:    "jti-ops",
		Exp:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func TestSearchEndpoint(t *testing.T) {
	s, handler := newTestServer(t)
	ctx := context.Background()
	if _, err := s.CreateDocument(ctx, store.Document{ID: "doc_1", TenantID: "tenant_a", Title: "handbook"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := s.CreateChunk(ctx, store.Chunk{TenantID: "tenant_a", DocumentID: "doc_1", Content: "vacation policy details"}); err != nil {
		t.Fatalf("CreateChunk() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"vacation policy"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result search.PagedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.TotalResults != 1 || result.Results[0].DocumentID != "doc_1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSearchEndpointRejectsBlankQuery(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"   "}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EMPTY_QUERY") {
		t.Fatalf("body missing error code: %s", rec.Body.String())
	}
}

func TestSearchEndpointServesFallback(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"nothing indexed"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result search.PagedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Type != search.TypeFallback {
		t.Fatalf("want single fallback result, got %+v", result.Results)
	}
}

func TestAdminRoutesRequireOperatorRole(t *testing.T) {
	_, handler := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/admin/outbox/dead-letters"},
		{http.MethodGet, "/api/admin/index/drift"},
		{http.MethodPost, "/api/admin/index/reconcile"},
		{http.MethodPost, "/api/admin/index/rebuild"},
	}
	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s status = %d, want 403", route.method, route.path, rec.Code)
		}
	}
}

func TestAdminDriftWithOperatorToken(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/index/drift", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var report indexing.DriftReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
}

func TestReplayUnknownEventReturns404(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/outbox/replay/evt_missing", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EVENT_NOT_FOUND") {
		t.Fatalf("body missing error code: %s", rec.Body.String())
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"anything"}`))
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

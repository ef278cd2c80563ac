package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"docvault/api/internal/logger"
	"docvault/api/internal/search"
	"docvault/api/internal/tenant"
)

type HTTPServer struct {
	service     *Service
	tokenSecret []byte
	log         *zap.Logger
}

func NewHTTPServer(service *Service, tokenSecret []byte, log *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, tokenSecret: tokenSecret, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withIdentity(http.HandlerFunc(s.handle))
}

// withIdentity resolves the caller from a bearer token when one is present
// and stores a request-scoped logger in the context. Requests without a
// token proceed under the default tenant identity.
func (s *HTTPServer) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithContext(r.Context(),
			s.log.With(zap.String("method", r.Method), zap.String("path", r.URL.Path)))

		header := r.Header.Get("Authorization")
		if header != "" {
			raw := strings.TrimPrefix(header, "Bearer ")
			claims, err := tenant.ParseToken(s.tokenSecret, raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
				return
			}
			ctx = tenant.WithIdentity(ctx, claims.Identity())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodGet && path == "/api/ready":
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.service.Ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})

	case r.Method == http.MethodPost && path == "/api/search":
		s.handleSearch(w, r)

	case r.Method == http.MethodGet && path == "/api/admin/outbox/dead-letters":
		events, err := s.service.DeadLetteredEvents(r.Context())
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/admin/outbox/replay/"):
		eventID := strings.TrimPrefix(path, "/api/admin/outbox/replay/")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "MISSING_EVENT_ID", "Event id is required")
			return
		}
		event, err := s.service.ReplayEvent(r.Context(), eventID)
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, event)

	case r.Method == http.MethodGet && path == "/api/admin/index/drift":
		report, err := s.service.AnalyzeDrift(r.Context())
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)

	case r.Method == http.MethodPost && path == "/api/admin/index/reconcile":
		report, err := s.service.ReconcileDrift(r.Context())
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)

	case r.Method == http.MethodPost && path == "/api/admin/index/rebuild":
		enqueued, err := s.service.RebuildIndex(r.Context())
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"enqueuedDocuments": enqueued})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown route")
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON")
		return
	}
	result, err := s.service.Search(r.Context(), req.Query, search.PageRequest{Page: req.Page, Size: req.Size})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var de *DomainError
	if errors.As(err, &de) {
		writeError(w, de.Status, de.Code, de.Message)
		return
	}
	logger.FromContext(ctx).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

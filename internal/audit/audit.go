// Package audit is the boundary to the audit trail. Persistence and
// querying of audit records live outside this service; the pipeline only
// emits events through the Logger contract.
package audit

import (
	"context"

	"go.uber.org/zap"

	"docvault/api/internal/tenant"
)

// Logger records retrieval events.
type Logger interface {
	LogSearch(ctx context.Context, query string, resultCount int)
}

// ZapLogger emits audit events as structured log lines.
type ZapLogger struct {
	log      *zap.Logger
	resolver tenant.Resolver
}

func NewZapLogger(log *zap.Logger, resolver tenant.Resolver) *ZapLogger {
	return &ZapLogger{log: log, resolver: resolver}
}

func (l *ZapLogger) LogSearch(ctx context.Context, query string, resultCount int) {
	id := l.resolver.Resolve(ctx)
	l.log.Info("search audit",
		zap.String("tenant", id.TenantID),
		zap.String("user", id.UserID),
		zap.String("query", query),
		zap.Int("results", resultCount),
	)
}

// Nop discards audit events; used in tests.
type Nop struct{}

func (Nop) LogSearch(context.Context, string, int) {}

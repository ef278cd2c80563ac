// Package outbox drains the durable queue of pending index mutations and
// manages the retry and dead-letter state machine.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docvault/api/internal/metrics"
	"docvault/api/internal/store"
)

// EventStore is the durable queue the processor drains.
type EventStore interface {
	ListPendingEvents(ctx context.Context) ([]store.OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkEventFailed(ctx context.Context, eventID string, retryCount int, nextRetryAt time.Time, deadLettered bool) error
}

// ChunkSource reads the current chunk rows for an entity.
type ChunkSource interface {
	FindChunksByDocument(ctx context.Context, documentID string) ([]store.Chunk, error)
}

// Indexer applies a single mutation to the external index.
type Indexer interface {
	IndexChunk(ctx context.Context, chunk store.Chunk) error
	DeleteEntityFromIndex(ctx context.Context, entityID string) error
}

// Options tune the processor. Zero values fall back to the defaults below.
type Options struct {
	Interval    time.Duration // tick period, default 10s
	BackoffStep time.Duration // per-retry backoff increment, default 10s
	BackoffCap  time.Duration // backoff ceiling, default 300s
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.BackoffStep <= 0 {
		o.BackoffStep = 10 * time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 300 * time.Second
	}
	return o
}

// Processor periodically applies pending events. Ticks are serialized
// in-process; that is the only coordination — a second deployed instance
// would double-apply events, which the idempotent index upserts and deletes
// make safe.
type Processor struct {
	events  EventStore
	chunks  ChunkSource
	indexer Indexer
	opts    Options
	log     *zap.Logger

	mu  sync.Mutex // serializes ticks
	now func() time.Time
}

func NewProcessor(events EventStore, chunks ChunkSource, indexer Indexer, opts Options, log *zap.Logger) *Processor {
	return &Processor{
		events:  events,
		chunks:  chunks,
		indexer: indexer,
		opts:    opts.withDefaults(),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks at the configured interval until the context is cancelled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.log.Error("outbox tick failed", zap.Error(err))
			}
		}
	}
}

// RunOnce processes every pending event, oldest first. Each event is applied
// and its state updated independently: one failure neither blocks nor rolls
// back its siblings. Backoff timestamps are recorded but do not gate the
// next attempt — every pending event is retried each tick.
func (p *Processor) RunOnce(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.now()
	defer func() {
		metrics.OutboxTickDuration.Observe(time.Since(started).Seconds())
	}()

	pending, err := p.events.ListPendingEvents(ctx)
	if err != nil {
		return fmt.Errorf("list pending events: %w", err)
	}
	metrics.OutboxPendingEvents.Set(float64(len(pending)))

	for _, event := range pending {
		if err := p.apply(ctx, event); err != nil {
			p.recordFailure(ctx, event, err)
			continue
		}
		if err := p.events.MarkEventProcessed(ctx, event.ID, p.now()); err != nil {
			p.log.Error("mark processed failed", zap.String("event", event.ID), zap.Error(err))
			continue
		}
		metrics.OutboxEventsTotal.WithLabelValues("processed").Inc()
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, event store.OutboxEvent) error {
	if event.Action == store.ActionDelete {
		return p.indexer.DeleteEntityFromIndex(ctx, event.EntityID)
	}
	chunks, err := p.chunks.FindChunksByDocument(ctx, event.EntityID)
	if err != nil {
		return fmt.Errorf("load chunks for %s: %w", event.EntityID, err)
	}
	for _, chunk := range chunks {
		if err := p.indexer.IndexChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) recordFailure(ctx context.Context, event store.OutboxEvent, applyErr error) {
	retries := event.RetryCount + 1
	backoff := time.Duration(retries) * p.opts.BackoffStep
	if backoff > p.opts.BackoffCap {
		backoff = p.opts.BackoffCap
	}
	nextRetry := p.now().Add(backoff)

	maxRetries := event.MaxRetries
	if maxRetries <= 0 {
		maxRetries = store.DefaultMaxRetries
	}
	deadLettered := retries >= maxRetries

	if err := p.events.MarkEventFailed(ctx, event.ID, retries, nextRetry, deadLettered); err != nil {
		p.log.Error("mark failed failed", zap.String("event", event.ID), zap.Error(err))
		return
	}

	if deadLettered {
		metrics.OutboxEventsTotal.WithLabelValues("dead_lettered").Inc()
		p.log.Error("outbox event dead-lettered",
			zap.String("event", event.ID),
			zap.String("entity", event.EntityID),
			zap.Int("retries", retries),
			zap.Error(applyErr))
	} else {
		metrics.OutboxEventsTotal.WithLabelValues("retried").Inc()
		p.log.Warn("outbox event retry",
			zap.String("event", event.ID),
			zap.Int("retry", retries),
			zap.Time("next_retry_at", nextRetry),
			zap.Error(applyErr))
	}
}

// SetClock overrides the processor clock for tests.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

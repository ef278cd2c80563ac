package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docvault/api/internal/util"
)

// querier is satisfied by both *sql.DB and *sql.Tx so that store methods can
// run inside a caller-controlled transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the production Store backed by the relational system of
// record.
type PostgresStore struct {
	db         *sql.DB
	q          querier
	maxRetries int
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db, maxRetries: DefaultMaxRetries}
}

// SetEventMaxRetries overrides the retry budget assigned to newly enqueued
// outbox events.
func (s *PostgresStore) SetEventMaxRetries(n int) {
	if n > 0 {
		s.maxRetries = n
	}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// WithTx runs fn against a store bound to a single transaction. A source
// mutation and its outbox enqueue share one atomic unit of work this way, so
// a committed change always has its pending event.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx *PostgresStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	bound := &PostgresStore{db: s.db, q: tx, maxRetries: s.maxRetries}
	if err := fn(bound); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- chunks ---

const chunkColumns = `id, tenant_id, document_id, sequence_number, content, token_count, created_at, modified_at`

func (s *PostgresStore) FindChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id=$1 ORDER BY sequence_number ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks by document: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *PostgresStore) FindChunksByTenant(ctx context.Context, tenantID string) ([]Chunk, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE tenant_id=$1 ORDER BY created_at ASC, id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query chunks by tenant: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *PostgresStore) FindChunkIDsByTenant(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM chunks WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) CreateChunk(ctx context.Context, chunk Chunk) (Chunk, error) {
	if chunk.ID == "" {
		chunk.ID = util.NewID("chk")
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO chunks (id, tenant_id, document_id, sequence_number, content, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content=EXCLUDED.content,
			token_count=EXCLUDED.token_count,
			sequence_number=EXCLUDED.sequence_number,
			modified_at=NOW()
	`, chunk.ID, chunk.TenantID, chunk.DocumentID, chunk.Sequence, chunk.Content, chunk.TokenCount, chunk.CreatedAt)
	if err != nil {
		return Chunk{}, fmt.Errorf("upsert chunk: %w", err)
	}
	return chunk, nil
}

func (s *PostgresStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var modified sql.NullTime
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.Sequence, &c.Content, &c.TokenCount, &c.CreatedAt, &modified); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if modified.Valid {
			t := modified.Time
			c.ModifiedAt = &t
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- documents ---

func (s *PostgresStore) FindDocumentByID(ctx context.Context, tenantID, documentID string) (Document, error) {
	var doc Document
	var deleted sql.NullTime
	err := s.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, created_at, deleted_at
		FROM documents WHERE id=$1 AND tenant_id=$2
	`, documentID, tenantID).Scan(&doc.ID, &doc.TenantID, &doc.Title, &doc.CreatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("query document: %w", err)
	}
	if deleted.Valid {
		t := deleted.Time
		doc.DeletedAt = &t
	}

	rows, err := s.q.QueryContext(ctx, `SELECT group_id FROM document_groups WHERE document_id=$1`, documentID)
	if err != nil {
		return Document{}, fmt.Errorf("query document groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return Document{}, fmt.Errorf("scan document group: %w", err)
		}
		doc.AllowedGroupIDs = append(doc.AllowedGroupIDs, groupID)
	}
	return doc, rows.Err()
}

// FindDocumentsByTenant lists the tenant's live documents. Allowed-group sets
// are not loaded here; only FindDocumentByID needs them.
func (s *PostgresStore) FindDocumentsByTenant(ctx context.Context, tenantID string) ([]Document, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, title, created_at
		FROM documents WHERE tenant_id=$1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.TenantID, &doc.Title, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = util.NewID("doc")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, title, created_at) VALUES ($1, $2, $3, $4)
	`, doc.ID, doc.TenantID, doc.Title, doc.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	for _, groupID := range doc.AllowedGroupIDs {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO document_groups (document_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, doc.ID, groupID); err != nil {
			return Document{}, fmt.Errorf("insert document group: %w", err)
		}
	}
	return doc, nil
}

func (s *PostgresStore) SoftDeleteDocument(ctx context.Context, tenantID, documentID string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE documents SET deleted_at=NOW() WHERE id=$1 AND tenant_id=$2 AND deleted_at IS NULL`,
		documentID, tenantID)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- groups ---

func (s *PostgresStore) GroupsByTenant(ctx context.Context, tenantID string) ([]Group, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(parent_id, '') FROM groups WHERE tenant_id=$1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.TenantID, &g.Name, &g.ParentID); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *PostgresStore) GroupIDsByUser(ctx context.Context, tenantID, userID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT group_id FROM user_groups WHERE tenant_id=$1 AND user_id=$2
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- outbox ---

const eventColumns = `id, tenant_id, entity_type, entity_id, action, payload, retry_count, max_retries, next_retry_at, dead_lettered, created_at, processed_at`

func (s *PostgresStore) EnqueueOutboxEvent(ctx context.Context, params EnqueueEventParams) (OutboxEvent, error) {
	event := OutboxEvent{
		ID:         util.NewID("evt"),
		TenantID:   params.TenantID,
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		Action:     params.Action,
		Payload:    params.Payload,
		MaxRetries: s.maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
	if event.Payload == "" {
		event.Payload = "{}"
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, tenant_id, entity_type, entity_id, action, payload, retry_count, max_retries, dead_lettered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, FALSE, $8)
	`, event.ID, event.TenantID, event.EntityType, event.EntityID, event.Action, event.Payload, event.MaxRetries, event.CreatedAt)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("enqueue outbox event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) GetOutboxEvent(ctx context.Context, eventID string) (OutboxEvent, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM outbox_events WHERE id=$1`, eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return OutboxEvent{}, ErrNotFound
	}
	return event, err
}

// ListPendingEvents returns every unprocessed, non-dead-lettered event oldest
// first. next_retry_at intentionally does not gate this query: every pending
// event is retried each tick.
func (s *PostgresStore) ListPendingEvents(ctx context.Context) ([]OutboxEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM outbox_events
		WHERE processed_at IS NULL AND dead_lettered=FALSE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListDeadLetteredEvents(ctx context.Context) ([]OutboxEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM outbox_events
		WHERE dead_lettered=TRUE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dead-lettered events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at=$2 WHERE id=$1`, eventID, at)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkEventFailed(ctx context.Context, eventID string, retryCount int, nextRetryAt time.Time, deadLettered bool) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE outbox_events SET retry_count=$2, next_retry_at=$3, dead_lettered=$4 WHERE id=$1
	`, eventID, retryCount, nextRetryAt, deadLettered)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplayEvent resets an event's retry state so the processor picks it up
// again. Already-processed events are not replayable.
func (s *PostgresStore) ReplayEvent(ctx context.Context, eventID string) (OutboxEvent, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE outbox_events
		SET retry_count=0, dead_lettered=FALSE, next_retry_at=NOW()
		WHERE id=$1 AND processed_at IS NULL
		RETURNING `+eventColumns+`
	`, eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return OutboxEvent{}, ErrNotFound
	}
	return event, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (OutboxEvent, error) {
	var e OutboxEvent
	var nextRetry, processed sql.NullTime
	err := row.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Action, &e.Payload,
		&e.RetryCount, &e.MaxRetries, &nextRetry, &e.DeadLettered, &e.CreatedAt, &processed)
	if err != nil {
		return OutboxEvent{}, err
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		e.NextRetryAt = &t
	}
	if processed.Valid {
		t := processed.Time
		e.ProcessedAt = &t
	}
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]OutboxEvent, error) {
	var events []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

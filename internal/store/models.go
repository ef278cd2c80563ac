// Package store persists the system of record: documents, their content
// chunks, group links, and the search-index outbox.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist in tenant scope.
var ErrNotFound = errors.New("store: not found")

// Outbox actions. Any action other than ActionDelete is applied as an upsert.
const (
	ActionUpsert = "UPSERT"
	ActionDelete = "DELETE"
)

// DefaultMaxRetries is the retry budget assigned to new outbox events.
const DefaultMaxRetries = 5

// Chunk is a unit of document content, the atomic unit of indexing and
// retrieval.
type Chunk struct {
	ID         string
	TenantID   string
	DocumentID string
	Sequence   int
	Content    string
	TokenCount int
	CreatedAt  time.Time
	ModifiedAt *time.Time
}

// Document is the owning entity for chunks. AllowedGroupIDs is the access
// list consulted by security trimming; empty means open to the tenant.
type Document struct {
	ID              string
	TenantID        string
	Title           string
	AllowedGroupIDs []string
	CreatedAt       time.Time
	DeletedAt       *time.Time
}

// Group is a node in the tenant's group hierarchy. ParentID is empty for
// root groups.
type Group struct {
	ID       string
	TenantID string
	Name     string
	ParentID string
}

// UserGroup assigns a user to a group directly. Effective membership also
// includes every ancestor of the assigned group.
type UserGroup struct {
	TenantID string
	UserID   string
	GroupID  string
}

// OutboxEvent is a durable pending index mutation. It is created in the same
// transaction as the source change it represents and mutated only by the
// processor or an operator replay. Events are never deleted automatically.
type OutboxEvent struct {
	ID           string
	TenantID     string
	EntityType   string
	EntityID     string
	Action       string
	Payload      string
	RetryCount   int
	MaxRetries   int
	NextRetryAt  *time.Time
	DeadLettered bool
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// Pending reports whether the event is still awaiting successful application.
func (e OutboxEvent) Pending() bool {
	return e.ProcessedAt == nil && !e.DeadLettered
}

// EnqueueEventParams describes a new outbox event.
type EnqueueEventParams struct {
	TenantID   string
	EntityType string
	EntityID   string
	Action     string
	Payload    string
}

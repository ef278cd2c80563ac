// Package search serves ranked queries by fusing a lexical and a vector
// sub-search under per-document access control.
package search

import (
	"errors"
	"time"
)

// ErrEmptyQuery rejects blank queries before any sub-search runs.
var ErrEmptyQuery = errors.New("search query cannot be empty")

// Type labels where a result came from.
type Type string

const (
	TypeKeyword  Type = "keyword"
	TypeVector   Type = "vector"
	TypeHybrid   Type = "hybrid"
	TypeFallback Type = "fallback"
)

// Result is a single ranked hit. Results are query-scoped: produced fresh
// per request, never persisted.
type Result struct {
	ChunkID    string    `json:"chunkId"`
	DocumentID string    `json:"documentId"`
	Sequence   int       `json:"sequenceNumber"`
	Content    string    `json:"content"`
	TokenCount int       `json:"tokenCount"`
	Score      float64   `json:"relevanceScore"`
	Type       Type      `json:"searchType"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PageRequest selects a zero-based page of the fused result list.
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Normalize clamps the request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size < 1 {
		p.Size = 20
	}
	return p
}

// Offset is the index of the first element on the page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// PagedResult is one page of the secured, fused result list.
type PagedResult struct {
	Results      []Result `json:"results"`
	Page         int      `json:"page"`
	Size         int      `json:"size"`
	TotalResults int      `json:"totalResults"`
	Query        string   `json:"query"`
}

package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed UUID, e.g. "evt_3f0c...". An empty prefix yields a
// bare UUID.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// HasPrefix reports whether id carries the given entity prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}

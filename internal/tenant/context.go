// Package tenant carries the caller's tenant and user identity through
// request contexts. Every query and mutation is scoped to one tenant at a
// time.
package tenant

import "context"

// Identity describes the authenticated caller.
type Identity struct {
	UserID   string
	TenantID string
	Roles    []string
}

// HasRole reports whether the identity carries the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey struct{}

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the caller identity, if present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Resolver resolves the effective identity for a request, falling back to
// the configured default tenant and the system user when the context carries
// none.
type Resolver struct {
	DefaultTenantID string
}

func (r Resolver) Resolve(ctx context.Context) Identity {
	if id, ok := FromContext(ctx); ok && id.TenantID != "" {
		return id
	}
	return Identity{UserID: "system", TenantID: r.DefaultTenantID}
}

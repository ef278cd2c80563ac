// Package authz decides whether a caller may see a document. The check
// returns only a boolean so that fail-closed behavior is structural: lookup
// errors and cross-tenant access both read as denial, never as an error the
// search path could accidentally surface.
package authz

import (
	"context"

	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

// Authorizer is the narrow capability the search core consumes.
type Authorizer interface {
	CanAccessDocument(ctx context.Context, doc store.Document) bool
}

// GroupSource supplies the tenant group graph and direct user assignments.
type GroupSource interface {
	GroupsByTenant(ctx context.Context, tenantID string) ([]store.Group, error)
	GroupIDsByUser(ctx context.Context, tenantID, userID string) ([]string, error)
}

// GroupAuthorizer grants access when the caller's effective group set
// intersects the document's allowed groups. Effective membership includes
// every ancestor of a directly assigned group. A document with no allowed
// groups is open to its whole tenant.
type GroupAuthorizer struct {
	groups   GroupSource
	resolver tenant.Resolver
}

func NewGroupAuthorizer(groups GroupSource, resolver tenant.Resolver) *GroupAuthorizer {
	return &GroupAuthorizer{groups: groups, resolver: resolver}
}

func (a *GroupAuthorizer) CanAccessDocument(ctx context.Context, doc store.Document) bool {
	id := a.resolver.Resolve(ctx)
	if id.TenantID != doc.TenantID {
		return false
	}
	if len(doc.AllowedGroupIDs) == 0 {
		return true
	}

	effective, err := a.effectiveGroups(ctx, id.TenantID, id.UserID)
	if err != nil {
		return false
	}
	for _, groupID := range doc.AllowedGroupIDs {
		if effective[groupID] {
			return true
		}
	}
	return false
}

// effectiveGroups walks parent links upward from the user's direct groups.
func (a *GroupAuthorizer) effectiveGroups(ctx context.Context, tenantID, userID string) (map[string]bool, error) {
	direct, err := a.groups.GroupIDsByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	all, err := a.groups.GroupsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	parentByChild := make(map[string]string, len(all))
	for _, g := range all {
		if g.ParentID != "" {
			parentByChild[g.ID] = g.ParentID
		}
	}

	effective := make(map[string]bool, len(direct))
	stack := append([]string(nil), direct...)
	for _, id := range direct {
		effective[id] = true
	}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if parent, ok := parentByChild[current]; ok && !effective[parent] {
			effective[parent] = true
			stack = append(stack, parent)
		}
	}
	return effective, nil
}

// AllowAll grants every access check; useful in tests and single-user runs.
type AllowAll struct{}

func (AllowAll) CanAccessDocument(context.Context, store.Document) bool { return true }

// DenyAll denies every access check.
type DenyAll struct{}

func (DenyAll) CanAccessDocument(context.Context, store.Document) bool { return false }

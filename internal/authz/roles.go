package authz

import "docvault/api/internal/tenant"

type Role string
type Action string

const (
	RoleMember   Role = "member"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

const (
	ActionSearch       Action = "search"
	ActionInspectIndex Action = "inspect_index"
	ActionRepairIndex  Action = "repair_index"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOperator:
		return action == ActionSearch || action == ActionInspectIndex || action == ActionRepairIndex
	case RoleMember:
		return action == ActionSearch
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleOperator, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}

// IdentityCan reports whether any of the identity's roles permits the
// action. An identity with no roles is a plain member.
func IdentityCan(id tenant.Identity, action Action) bool {
	if len(id.Roles) == 0 {
		return Can(RoleMember, action)
	}
	for _, role := range id.Roles {
		if Can(Normalize(role), action) {
			return true
		}
	}
	return false
}

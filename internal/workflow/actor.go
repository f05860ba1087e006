package workflow

import "strings"

// Role is the workflow role carried by an authenticated caller.
type Role string

const (
	RoleLead       Role = "lead"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ParseRole normalises a raw role claim. Unknown values are kept so they can be rejected explicitly.
func ParseRole(raw string) Role {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "super_admin", "super-admin":
		return RoleSuperAdmin
	}
	return Role(normalized)
}

// IsKnown reports whether the role takes part in the workflow.
func (r Role) IsKnown() bool {
	switch r {
	case RoleLead, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Actor is the resolved identity of the caller performing an operation.
type Actor struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	DepartmentID string
	IPAddress    string
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return strings.TrimSpace(a.ID) != ""
}

package domain

// Role identifies what a connected session is allowed to see and do.
type Role string

const (
	// RoleAdmin sees and mutates every ticket.
	RoleAdmin Role = "admin"
	// RoleFlota is delivery staff, scoped to tickets assigned to them.
	RoleFlota Role = "flota"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleFlota
}

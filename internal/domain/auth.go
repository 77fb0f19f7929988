package domain

// Role is the permission level carried by a bearer token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ID   string
	Role Role
}

// IsStaff reports whether the caller works tickets (agent or admin).
func (p Principal) IsStaff() bool {
	return p.Role == RoleAgent || p.Role == RoleAdmin
}

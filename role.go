package relay

// Role identifies which side of a channel a connection occupies.
type Role string

const (
	RolePlugin Role = "plugin"
	RoleAgent  Role = "agent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePlugin || r == RoleAgent
}

// Counterpart returns the role on the other side of a channel.
func (r Role) Counterpart() Role {
	switch r {
	case RolePlugin:
		return RoleAgent
	case RoleAgent:
		return RolePlugin
	default:
		return ""
	}
}

package domain

// Member represents a connection's participation meta inside a workspace.
// No transport or lifecycle logic here.
type Member struct {
	User  *User
	Color string
	Role  Role
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, color string, role Role) *Member {
	if color == "" {
		color = ColorFor(user.ID)
	}
	return &Member{User: user, Color: color, Role: role}
}

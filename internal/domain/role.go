package domain

import "fmt"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleEditor, RoleViewer:
		return r, nil
	}
	return "", fmt.Errorf("role %q: %w", s, ErrValidation)
}

// CanWrite reports whether content edits from this role are accepted.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleEditor
}

func (r Role) String() string { return string(r) }

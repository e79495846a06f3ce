// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"hash/fnv"
	"strings"
)

const (
	// MaxIDLen bounds every externally supplied id: users, workspaces, files.
	MaxIDLen       = 128
	MaxUsernameLen = 64
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser fails only on a bad id. The display name never blocks a user:
// an empty one falls back to the id and a long one is cut.
func NewUser(id UserID, username string) (*User, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: id}
	u.SetUsername(username)
	return u, nil
}

func (u *User) SetUsername(username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = string(u.ID)
	}
	if r := []rune(username); len(r) > MaxUsernameLen {
		username = string(r[:MaxUsernameLen])
	}
	u.Username = username
}

// Identity is what the auth layer hands to the real-time core for a
// connection attempt. Role is resolved later through the membership oracle.
type Identity struct {
	UserID   UserID
	Username string
}

var palette = []string{
	"#f87171", "#fb923c", "#facc15", "#4ade80",
	"#2dd4bf", "#60a5fa", "#a78bfa", "#f472b6",
}

// ColorFor picks a stable display color for users that did not send one.
func ColorFor(id UserID) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

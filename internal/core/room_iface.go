package core

import (
	"github.com/codesync/collab/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
// UserID carries the connection id; ProfileID is the account id.
type MemberDTO struct {
	UserID    SessionID     `json:"userId"`
	ProfileID domain.UserID `json:"profileId"`
	Username  string        `json:"username"`
	Color     string        `json:"color"`
	Role      domain.Role   `json:"role"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Key() domain.RoomKey
	MemberCount() int
	Has(sid SessionID) bool
	MembersSnapshot() []MemberDTO
	Sessions() []MemberSession

	AddMember(ms MemberSession)
	RemoveMember(sid SessionID) bool
	// Broadcast sends to every member except from. An empty from reaches everyone.
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Key         string `json:"room"`
	MemberCount int    `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(key domain.RoomKey) RoomService
	Get(key domain.RoomKey) (RoomService, bool)
	List() []RoomInfo
	StopRoom(key domain.RoomKey)
}

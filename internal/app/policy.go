package app

import (
	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/protocol"
)

type BackpressureAction int

const (
	KickMember BackpressureAction = iota
	DropFrame
)

// Policy decides what happens to a member whose send queue is full when a
// frame of the given type could not be queued.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession, frameType string) BackpressureAction
}

// expendable frames are superseded by the next one of the same kind.
var expendable = map[string]bool{
	protocol.CursorUpdate:   true,
	protocol.ActivityUpdate: true,
}

// SimplePolicy drops presence-only frames and kicks members that miss
// anything else, since a missed code_update leaves their buffer stale.
// Kicked members refetch everything on reconnect.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, member core.MemberSession, frameType string) BackpressureAction {
	if expendable[frameType] {
		return DropFrame
	}
	return KickMember
}

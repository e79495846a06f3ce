package orch

import (
	"encoding/json"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
)

// commentRelays maps inbound comment events to what the room receives.
var commentRelays = map[string]string{
	protocol.CommentAdded:    protocol.NewComment,
	protocol.CommentUpdated:  protocol.CommentUpdated,
	protocol.CommentDeleted:  protocol.CommentDeleted,
	protocol.ReactionToggled: protocol.ReactionUpdated,
}

// RelayComment forwards a comment change, already stored through the REST
// API, to the rest of the workspace room.
func (o *Orchestrator) RelayComment(sid core.SessionID, kind string, ws domain.WorkspaceID, comment json.RawMessage, commentID string) Decision {
	out, ok := commentRelays[kind]
	if !ok {
		return deny(DenyUnknownEvent)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		return deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		return deny(DenyNotAdmitted)
	}
	if entry.Workspace != ws {
		return deny(DenyWorkspaceMismatch)
	}
	room, ok := o.Rooms.Get(domain.WorkspaceKey(ws))
	if !ok {
		return deny(DenyNotAdmitted)
	}
	msg := protocol.CommentMsg{Type: out, Comment: comment}
	if kind == protocol.CommentDeleted {
		msg = protocol.CommentMsg{Type: out, CommentID: commentID}
	}
	o.broadcast(room, sid, msg)
	return accept(entry.Session.Meta().Role)
}

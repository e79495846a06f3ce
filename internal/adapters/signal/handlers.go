package signal

import (
	"context"
	"encoding/json"

	"github.com/codesync/collab/internal/app/orch"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/rs/zerolog/log"
)

type validatable interface {
	Validate() error
}

// decode unmarshals and validates one inbound frame.
func decode[T validatable](data []byte) (T, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	return m, m.Validate()
}

// badPayload reports a malformed frame to its sender.
func (ctl *SignalWSController) badPayload(cl *client, typ string, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("type", typ).Msg("bad payload")
	ctl.sendError(cl.conn, "bad_payload")
}

// logDecision records denials; they are never reported on the socket.
func (ctl *SignalWSController) logDecision(cl *client, typ string, d orch.Decision) {
	if d.Accepted() {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("type", typ).Str("reason", string(d.Denied)).Msg("event dropped")
}

func (ctl *SignalWSController) handleJoinWorkspace(ctx context.Context, cl *client, data []byte) {
	m, err := decode[protocol.JoinWorkspaceMsg](data)
	if err != nil {
		ctl.badPayload(cl, protocol.JoinWorkspace, err)
		return
	}
	ident := domain.Identity{UserID: domain.UserID(m.UserID), Username: m.Username}
	if cl.verified {
		// a verified socket acts as its token subject whatever the frame claims
		ident.UserID = cl.ident.UserID
		if cl.ident.Username != "" {
			ident.Username = cl.ident.Username
		}
	}
	d := ctl.Orch.AnnounceWorkspace(ctx, cl.sid, domain.WorkspaceID(m.WorkspaceID), ident, m.Color)
	ctl.logDecision(cl, protocol.JoinWorkspace, d)
}

func (ctl *SignalWSController) handleJoinFile(ctx context.Context, cl *client, data []byte) {
	m, err := decode[protocol.JoinFileMsg](data)
	if err != nil {
		ctl.badPayload(cl, protocol.JoinFile, err)
		return
	}
	ctl.logDecision(cl, protocol.JoinFile, ctl.Orch.AnnounceFile(ctx, cl.sid, domain.FileID(m.FileID)))
}

func (ctl *SignalWSController) handleCodeChange(cl *client, data []byte) {
	m, err := decode[protocol.CodeChangeMsg](data)
	if err != nil {
		ctl.badPayload(cl, protocol.CodeChange, err)
		return
	}
	ctl.logDecision(cl, protocol.CodeChange, ctl.Orch.Edit(cl.sid, domain.FileID(m.FileID), m.Code))
}

func (ctl *SignalWSController) handleCursor(cl *client, data []byte) {
	m, err := decode[protocol.CursorPositionMsg](data)
	if err != nil {
		ctl.badPayload(cl, protocol.CursorPosition, err)
		return
	}
	d := ctl.Orch.CursorMove(cl.sid, domain.FileID(m.FileID), m.Position, m.Username, m.Color)
	ctl.logDecision(cl, protocol.CursorPosition, d)
}

func (ctl *SignalWSController) handleVoiceMembership(cl *client, typ string, data []byte) {
	m, err := decode[protocol.VoiceMembershipMsg](data)
	if err != nil {
		ctl.badPayload(cl, typ, err)
		return
	}
	ws := domain.WorkspaceID(m.WorkspaceID)
	var d orch.Decision
	if typ == protocol.VoiceJoin {
		d = ctl.Orch.VoiceJoin(cl.sid, ws)
	} else {
		d = ctl.Orch.VoiceLeave(cl.sid, ws)
	}
	ctl.logDecision(cl, typ, d)
}

func (ctl *SignalWSController) handleVoiceRelay(cl *client, typ string, data []byte) {
	m, err := decode[protocol.VoiceRelayMsg](data)
	if err != nil {
		ctl.badPayload(cl, typ, err)
		return
	}
	ctl.logDecision(cl, typ, ctl.Orch.VoiceRelay(cl.sid, typ, domain.UserID(m.To), m.Payload))
}

func (ctl *SignalWSController) handleComment(cl *client, typ string, data []byte) {
	m, err := decode[protocol.CommentRelayMsg](data)
	if err != nil {
		ctl.badPayload(cl, typ, err)
		return
	}
	d := ctl.Orch.RelayComment(cl.sid, typ, domain.WorkspaceID(m.WorkspaceID), m.Comment, m.CommentID)
	ctl.logDecision(cl, typ, d)
}

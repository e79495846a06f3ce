package orch

import (
	"encoding/json"

	"github.com/codesync/collab/internal/app"
	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/rs/zerolog/log"
)

// VoiceJoin adds sid to its workspace's call. Existing participants are told
// and start peer connections themselves; the server originates nothing.
func (o *Orchestrator) VoiceJoin(sid core.SessionID, ws domain.WorkspaceID) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, d := o.voiceEntry(sid, ws)
	if !d.Accepted() {
		return d
	}
	meta := entry.Session.Meta()
	room := o.Rooms.GetOrCreate(domain.VoiceKey(ws))

	participants := make([]protocol.VoiceParticipant, 0, room.MemberCount())
	for _, s := range room.Sessions() {
		if s.SID() == sid {
			continue
		}
		participants = append(participants, protocol.VoiceParticipant{
			UserID:   s.Meta().User.ID,
			Username: s.Meta().User.Username,
			SocketID: s.SID(),
		})
	}
	o.send(entry.Session, protocol.VoiceJoinedMsg{
		Type:         protocol.VoiceJoined,
		WorkspaceID:  ws,
		ICEServers:   o.Opts.ICEServers,
		Participants: participants,
	})
	if entry.InVoice {
		return accept(meta.Role)
	}

	room.AddMember(entry.Session)
	o.Registry.SetVoice(sid, true)
	o.broadcast(room, sid, protocol.VoicePresenceMsg{
		Type: protocol.VoiceUserJoined,
		VoiceParticipant: protocol.VoiceParticipant{
			UserID:   meta.User.ID,
			Username: meta.User.Username,
			SocketID: sid,
		},
	})
	log.Info().Str("module", "orch.voice").Str("sid", string(sid)).Str("workspace", string(ws)).Int("participants", room.MemberCount()).Msg("joined call")
	return accept(meta.Role)
}

func (o *Orchestrator) VoiceLeave(sid core.SessionID, ws domain.WorkspaceID) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, d := o.voiceEntry(sid, ws)
	if !d.Accepted() {
		return d
	}
	if !entry.InVoice {
		return deny(DenyNotInVoice)
	}
	meta := entry.Session.Meta()
	o.Registry.SetVoice(sid, false)
	if room, removed := o.leaveRoom(domain.VoiceKey(ws), sid); removed {
		o.broadcast(room, sid, protocol.VoicePresenceMsg{
			Type: protocol.VoiceUserLeft,
			VoiceParticipant: protocol.VoiceParticipant{
				UserID:   meta.User.ID,
				Username: meta.User.Username,
				SocketID: sid,
			},
		})
	}
	log.Info().Str("module", "orch.voice").Str("sid", string(sid)).Str("workspace", string(ws)).Msg("left call")
	return accept(meta.Role)
}

// VoiceRelay forwards an offer, answer or ICE candidate. By default the
// frame goes to the whole call except the sender and receivers filter on
// "to"; with Opts.TargetedVoiceRelay only connections of the addressed user
// receive it.
func (o *Orchestrator) VoiceRelay(sid core.SessionID, kind string, to domain.UserID, payload json.RawMessage) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		return deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		return deny(DenyNotAdmitted)
	}
	if !entry.InVoice {
		return deny(DenyNotInVoice)
	}
	room, ok := o.Rooms.Get(domain.VoiceKey(entry.Workspace))
	if !ok {
		return deny(DenyNotInVoice)
	}
	meta := entry.Session.Meta()
	msg := protocol.VoiceSignalMsg{Type: kind, From: meta.User.ID, To: to, Payload: payload}

	if o.Opts.TargetedVoiceRelay && to != "" {
		for _, s := range room.Sessions() {
			if s.SID() != sid && s.Meta().User.ID == to {
				o.send(s, msg)
			}
		}
	} else {
		o.broadcast(room, sid, msg)
	}
	log.Debug().Str("module", "orch.voice").Str("sid", string(sid)).Str("kind", kind).Str("from", string(meta.User.ID)).Str("to", string(to)).Msg("relayed")
	return accept(meta.Role)
}

// voiceEntry checks the call piggybacks on the workspace sid announced.
func (o *Orchestrator) voiceEntry(sid core.SessionID, ws domain.WorkspaceID) (app.Entry, Decision) {
	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		return app.Entry{}, deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		return app.Entry{}, deny(DenyNotAdmitted)
	}
	if entry.Workspace != ws {
		return app.Entry{}, deny(DenyWorkspaceMismatch)
	}
	return entry, accept(entry.Session.Meta().Role)
}

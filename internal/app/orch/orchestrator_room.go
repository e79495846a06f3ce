package orch

import (
	"context"
	"errors"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/rs/zerolog/log"
)

// AnnounceWorkspace admits sid into the workspace room when the membership
// oracle knows the user. Denials are silent on the wire.
func (o *Orchestrator) AnnounceWorkspace(ctx context.Context, sid core.SessionID, ws domain.WorkspaceID, ident domain.Identity, color string) Decision {
	logger := log.With().Str("module", "orch.room").Str("sid", string(sid)).Str("workspace", string(ws)).Str("user", string(ident.UserID)).Logger()

	if !o.Registry.Alive(sid) {
		return deny(DenyDisconnected)
	}
	user, err := domain.NewUser(ident.UserID, ident.Username)
	if err != nil {
		logger.Info().Err(err).Msg("join denied: invalid identity")
		return deny(DenyInvalidIdentity)
	}

	role, err := o.Oracle.GetRole(ctx, ws, user.ID)
	switch {
	case errors.Is(err, domain.ErrNotMember):
		logger.Info().Msg("join denied: not a member")
		return deny(DenyNotMember)
	case err != nil:
		logger.Error().Err(err).Msg("join denied: role lookup failed")
		return deny(DenyLookupFailed)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// the channel may have closed while the oracle was queried
	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		logger.Info().Msg("join dropped: disconnected during lookup")
		return deny(DenyDisconnected)
	}

	if entry.Workspace == ws && entry.Admitted() {
		// re-announce of the same workspace refreshes identity and role only
		o.Registry.Admit(sid, ws, domain.NewMember(user, color, role))
		room := o.Rooms.GetOrCreate(domain.WorkspaceKey(ws))
		o.sendWorkspaceJoined(entry.Session, ws, role, room)
		return accept(role)
	}
	if entry.Workspace != "" {
		o.leaveLocked(sid)
	}

	meta := domain.NewMember(user, color, role)
	o.Registry.Admit(sid, ws, meta)
	room := o.Rooms.GetOrCreate(domain.WorkspaceKey(ws))
	room.AddMember(entry.Session)

	o.sendWorkspaceJoined(entry.Session, ws, role, room)
	o.broadcast(room, sid, protocol.UserJoinedMsg{
		Type:      protocol.UserJoined,
		UserID:    sid,
		ProfileID: user.ID,
		Username:  user.Username,
		Color:     meta.Color,
		Role:      role,
	})
	o.record(domain.ActivityEvent{
		WorkspaceID: ws,
		UserID:      user.ID,
		ActionType:  domain.ActionUserJoined,
		Metadata:    map[string]any{"username": user.Username},
	})
	logger.Info().Str("role", string(role)).Msg("joined workspace")
	return accept(role)
}

func (o *Orchestrator) sendWorkspaceJoined(sess core.MemberSession, ws domain.WorkspaceID, role domain.Role, room core.RoomService) {
	o.send(sess, protocol.WorkspaceJoinedMsg{
		Type:        protocol.WorkspaceJoined,
		WorkspaceID: ws,
		Role:        role,
		Members:     room.MembersSnapshot(),
	})
}

// AnnounceFile moves sid into the file room and delivers the best-known
// content to sid alone. No membership re-check: workspace admission covers
// every file in it.
func (o *Orchestrator) AnnounceFile(ctx context.Context, sid core.SessionID, fileID domain.FileID) Decision {
	logger := log.With().Str("module", "orch.room").Str("sid", string(sid)).Str("file", string(fileID)).Logger()

	o.mu.Lock()
	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		o.mu.Unlock()
		return deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		o.mu.Unlock()
		logger.Info().Msg("join_file dropped: not admitted")
		return deny(DenyNotAdmitted)
	}
	if entry.File != "" {
		o.leaveRoom(domain.FileKey(entry.File), sid)
	}
	o.Rooms.GetOrCreate(domain.FileKey(fileID)).AddMember(entry.Session)
	o.Registry.SetFile(sid, fileID)
	content, known := o.bestKnownLocked(fileID)
	o.mu.Unlock()

	if !known {
		content = o.fetch(ctx, fileID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok = o.Registry.Lookup(sid)
	if !ok || entry.File != fileID {
		logger.Debug().Msg("file content not delivered: connection moved on")
		return deny(DenyDisconnected)
	}
	// an edit may have been broadcast while storage was being read
	if newer, ok := o.bestKnownLocked(fileID); ok {
		content = newer
	}
	o.send(entry.Session, protocol.FileJoinedMsg{Type: protocol.FileJoined, FileID: fileID, Code: content})
	logger.Info().Int("bytes", len(content)).Msg("joined file")
	return accept(entry.Session.Meta().Role)
}

// Leave is the explicit departure from the workspace. The channel stays open.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leaveLocked(sid)
}

// leaveLocked vacates every room. The registry release makes it idempotent:
// a second call finds nothing to release and emits nothing.
func (o *Orchestrator) leaveLocked(sid core.SessionID) bool {
	prev, ok := o.Registry.Release(sid)
	if !ok {
		return false
	}
	meta := prev.Session.Meta()

	if prev.File != "" {
		o.leaveRoom(domain.FileKey(prev.File), sid)
	}
	if prev.InVoice {
		if room, removed := o.leaveRoom(domain.VoiceKey(prev.Workspace), sid); removed {
			o.broadcast(room, sid, protocol.VoicePresenceMsg{
				Type: protocol.VoiceUserLeft,
				VoiceParticipant: protocol.VoiceParticipant{
					UserID:   meta.User.ID,
					Username: meta.User.Username,
					SocketID: sid,
				},
			})
		}
	}
	if room, removed := o.leaveRoom(domain.WorkspaceKey(prev.Workspace), sid); removed {
		o.broadcast(room, sid, protocol.UserLeftMsg{
			Type:      protocol.UserLeft,
			UserID:    sid,
			ProfileID: meta.User.ID,
			Username:  meta.User.Username,
		})
	}
	o.record(domain.ActivityEvent{
		WorkspaceID: prev.Workspace,
		UserID:      meta.User.ID,
		ActionType:  domain.ActionUserLeft,
		Metadata:    map[string]any{"username": meta.User.Username},
	})
	o.flusher.FlushEditor(sid)

	log.Info().Str("module", "orch.room").Str("sid", string(sid)).Str("workspace", string(prev.Workspace)).Msg("left workspace")
	return true
}

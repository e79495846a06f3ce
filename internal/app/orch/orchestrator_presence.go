package orch

import (
	"context"
	"errors"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/rs/zerolog/log"
)

// ListPresent returns the connections admitted to ws, in join order.
func (o *Orchestrator) ListPresent(ws domain.WorkspaceID) []core.MemberDTO {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, ok := o.Rooms.Get(domain.WorkspaceKey(ws))
	if !ok {
		return []core.MemberDTO{}
	}
	return room.MembersSnapshot()
}

// UpdateRole applies a role change made by an owner to every live connection
// of user in ws. Each affected connection is told directly; the room gets a
// member_updated notice. Returns the number of affected connections.
func (o *Orchestrator) UpdateRole(ws domain.WorkspaceID, user domain.UserID, oldRole, role domain.Role) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, sid := range o.Registry.SessionsOf(ws, user) {
		if _, ok := o.Registry.UpdateRole(sid, role); !ok {
			continue
		}
		entry, _ := o.Registry.Lookup(sid)
		o.send(entry.Session, protocol.RoleChangedMsg{
			Type:        protocol.RoleChanged,
			WorkspaceID: ws,
			Role:        role,
			OldRole:     oldRole,
		})
		n++
	}
	if room, ok := o.Rooms.Get(domain.WorkspaceKey(ws)); ok {
		o.broadcast(room, "", protocol.MemberUpdatedMsg{
			Type:    protocol.MemberUpdated,
			UserID:  user,
			Role:    role,
			OldRole: oldRole,
		})
	}
	log.Info().Str("module", "orch.presence").Str("workspace", string(ws)).Str("user", string(user)).Str("role", string(role)).Int("connections", n).Msg("role updated")
	return n
}

// SyncRole refreshes the tracked role from the membership oracle. The role a
// client claims is never trusted; a user no longer in the workspace is
// removed from it.
func (o *Orchestrator) SyncRole(ctx context.Context, sid core.SessionID) Decision {
	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		return deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		return deny(DenyNotAdmitted)
	}
	ws, user := entry.Workspace, entry.Session.Meta().User.ID

	role, err := o.Oracle.GetRole(ctx, ws, user)
	if err != nil && !errors.Is(err, domain.ErrNotMember) {
		log.Error().Err(err).Str("module", "orch.presence").Str("sid", string(sid)).Msg("role sync lookup failed")
		return deny(DenyLookupFailed)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok = o.Registry.Lookup(sid)
	if !ok || entry.Workspace != ws {
		return deny(DenyDisconnected)
	}
	if errors.Is(err, domain.ErrNotMember) {
		log.Info().Str("module", "orch.presence").Str("sid", string(sid)).Str("workspace", string(ws)).Msg("membership revoked, leaving")
		o.leaveLocked(sid)
		return deny(DenyNotMember)
	}
	o.Registry.UpdateRole(sid, role)
	o.send(entry.Session, protocol.RoleSyncedMsg{Type: protocol.RoleSynced, Role: role})
	return accept(role)
}

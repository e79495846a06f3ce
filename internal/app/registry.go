package app

import (
	"context"
	"sync"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/rs/zerolog/log"
)

// Entry is the per-connection presence state. It is what the tracker knows
// about one channel: who it is, where it is, and in which role.
type Entry struct {
	Session   core.MemberSession
	Workspace domain.WorkspaceID
	File      domain.FileID
	InVoice   bool
	Cancel    context.CancelFunc
}

// Admitted reports whether the connection passed a workspace announcement.
func (e Entry) Admitted() bool { return e.Workspace != "" && e.Session.Meta() != nil }

// Registry is the presence tracker: process-lifetime, in-memory, rebuilt
// from zero on restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*Entry),
	}
}

func (r *Registry) Bind(sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.SID()] = &Entry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sess.SID())).Msg("bound session")
}

func (r *Registry) Lookup(sid core.SessionID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *Registry) Alive(sid core.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sid]
	return ok
}

// Admit attaches member meta and the workspace to a bound session.
func (r *Registry) Admit(sid core.SessionID, ws domain.WorkspaceID, meta *domain.Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Session.UpdateMeta(meta)
	e.Workspace = ws
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("workspace", string(ws)).Str("role", string(meta.Role)).Msg("admitted")
	return true
}

// Release clears workspace, file and voice state, keeping the channel bound.
// The previous entry is returned so callers can broadcast departures; ok is
// false when there was nothing to release.
func (r *Registry) Release(sid core.SessionID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Workspace == "" {
		return Entry{}, false
	}
	prev := *e
	e.Workspace = ""
	e.File = ""
	e.InVoice = false
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("workspace", string(prev.Workspace)).Msg("released")
	return prev, true
}

func (r *Registry) SetFile(sid core.SessionID, file domain.FileID) (prev domain.FileID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	prev = e.File
	e.File = file
	return prev, true
}

func (r *Registry) SetVoice(sid core.SessionID, in bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.InVoice = in
	return true
}

// UpdateRole changes the tracked role of an admitted connection.
func (r *Registry) UpdateRole(sid core.SessionID, role domain.Role) (old domain.Role, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session.Meta() == nil {
		return "", false
	}
	meta := e.Session.Meta()
	old = meta.Role
	meta.Role = role
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("old_role", string(old)).Str("role", string(role)).Msg("updated role")
	return old, true
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// SessionsOf returns the connections of one account inside a workspace.
func (r *Registry) SessionsOf(ws domain.WorkspaceID, user domain.UserID) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.SessionID
	for sid, e := range r.sessions {
		if e.Workspace != ws || e.Session.Meta() == nil {
			continue
		}
		if e.Session.Meta().User.ID == user {
			out = append(out, sid)
		}
	}
	return out
}

func (r *Registry) All() []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.sessions))
	for sid := range r.sessions {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/codesync/collab/internal/app/flush"
	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Edit applies a full-content edit: last writer wins. The content goes to
// every other connection in the file room right away and is persisted once
// the file has been quiet for Opts.QuietPeriod.
//
// Besides a writable role, the sender must have joined fileID with
// AnnounceFile; edits for any other file are dropped with DenyNotInFileRoom.
// This is stricter than a role-only gate, which would accept edits for
// files the sender never opened.
func (o *Orchestrator) Edit(sid core.SessionID, fileID domain.FileID, content string) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		return deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		return deny(DenyNotAdmitted)
	}
	if entry.File != fileID {
		log.Debug().Str("module", "orch.document").Str("sid", string(sid)).Str("file", string(fileID)).Msg("edit dropped: not in file room")
		return deny(DenyNotInFileRoom)
	}
	meta := entry.Session.Meta()
	if !meta.Role.CanWrite() {
		log.Info().Str("module", "orch.document").Str("sid", string(sid)).Str("user", string(meta.User.ID)).Str("file", string(fileID)).Msg("edit dropped: read-only role")
		return deny(DenyReadOnly)
	}

	if room, ok := o.Rooms.Get(domain.FileKey(fileID)); ok {
		o.broadcast(room, sid, protocol.CodeUpdateMsg{
			Type:      protocol.CodeUpdate,
			FileID:    fileID,
			Code:      content,
			UserID:    meta.User.ID,
			Username:  meta.User.Username,
			Timestamp: o.now().UTC(),
		})
	}
	o.latest[fileID] = content
	o.flusher.Schedule(flush.Job{
		FileID:    fileID,
		Workspace: entry.Workspace,
		Content:   content,
		Editor:    *meta.User,
		EditorSID: sid,
	})
	return accept(meta.Role)
}

// CursorMove is presence only: any member of the file room may send it.
func (o *Orchestrator) CursorMove(sid core.SessionID, fileID domain.FileID, position json.RawMessage, username, color string) Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.Registry.Lookup(sid)
	if !ok {
		return deny(DenyDisconnected)
	}
	if !entry.Admitted() {
		return deny(DenyNotAdmitted)
	}
	if entry.File != fileID {
		return deny(DenyNotInFileRoom)
	}
	meta := entry.Session.Meta()
	if username == "" {
		username = meta.User.Username
	}
	if color == "" {
		color = meta.Color
	}
	if room, ok := o.Rooms.Get(domain.FileKey(fileID)); ok {
		o.broadcast(room, sid, protocol.CursorUpdateMsg{
			Type:     protocol.CursorUpdate,
			UserID:   sid,
			Position: position,
			Username: username,
			Color:    color,
		})
	}
	return accept(meta.Role)
}

// bestKnownLocked prefers the last broadcast edit, then a write still waiting
// for its quiet period.
func (o *Orchestrator) bestKnownLocked(fileID domain.FileID) (string, bool) {
	if content, ok := o.latest[fileID]; ok {
		return content, true
	}
	return o.flusher.Pending(fileID)
}

// fetch never fails a join: unknown files and storage errors read as "".
func (o *Orchestrator) fetch(ctx context.Context, fileID domain.FileID) string {
	content, err := o.Store.GetFileContent(ctx, fileID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ""
	case err != nil:
		log.Warn().Err(err).Str("module", "orch.document").Str("file", string(fileID)).Msg("read file content")
		return ""
	}
	return content
}

// persist is the debounced flush. Failures are logged and not retried.
func (o *Orchestrator) persist(job flush.Job) {
	logger := log.With().Str("module", "orch.document").Str("file", string(job.FileID)).Str("user", string(job.Editor.ID)).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), o.Opts.FlushTimeout)
	defer cancel()

	if err := o.Store.SetFileContent(ctx, job.FileID, job.Content, job.Editor.ID); err != nil {
		logger.Error().Err(err).Msg("persist file content")
		return
	}
	if o.Opts.VersionOnFlush {
		if err := o.Store.AppendVersionSnapshot(ctx, job.FileID, job.Content, job.Editor.ID); err != nil {
			logger.Error().Err(err).Msg("append version snapshot")
		}
	}
	o.record(domain.ActivityEvent{
		WorkspaceID: job.Workspace,
		UserID:      job.Editor.ID,
		ActionType:  domain.ActionFileUpdated,
		TargetID:    string(job.FileID),
		Metadata:    map[string]any{"username": job.Editor.Username},
	})
	logger.Debug().Int("bytes", len(job.Content)).Msg("persisted file content")
}

package core

import (
	"context"

	"github.com/codesync/collab/internal/domain"
)

// ContentStore is the persistence capability the live document session needs.
// GetFileContent returns domain.ErrNotFound for unknown files.
type ContentStore interface {
	GetFileContent(ctx context.Context, fileID domain.FileID) (string, error)
	SetFileContent(ctx context.Context, fileID domain.FileID, content string, editor domain.UserID) error
	AppendVersionSnapshot(ctx context.Context, fileID domain.FileID, content string, editor domain.UserID) error
}

// MembershipOracle answers "which role does user have in workspace".
// A user without membership yields domain.ErrNotMember.
type MembershipOracle interface {
	GetRole(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) (domain.Role, error)
}

// MemberStore is the write side used by the role change endpoint.
type MemberStore interface {
	MembershipOracle
	SetRole(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID, role domain.Role) error
}

// ActivityRecorder is fire-and-forget: Record never blocks on I/O and never fails.
type ActivityRecorder interface {
	Record(ev domain.ActivityEvent)
}

// ActivityStore is the durable sink behind the recorder.
type ActivityStore interface {
	AppendActivity(ctx context.Context, ev domain.ActivityEvent) error
}

// ActivityFeed reads a workspace feed, newest first.
type ActivityFeed interface {
	ListActivity(ctx context.Context, workspaceID domain.WorkspaceID, limit int) ([]domain.ActivityEvent, error)
}

type ExecResult struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// CodeExecutor runs submitted source with an enforced timeout.
type CodeExecutor interface {
	Execute(ctx context.Context, code, language string) (ExecResult, error)
}

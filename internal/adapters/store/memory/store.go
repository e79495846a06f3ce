// Package memory is a process-local store used in development mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/google/uuid"
)

type memberKey struct {
	ws   domain.WorkspaceID
	user domain.UserID
}

type file struct {
	content      string
	lastEditedBy domain.UserID
	updatedAt    time.Time
}

type Store struct {
	mu       sync.RWMutex
	files    map[domain.FileID]*file
	versions map[domain.FileID][]domain.FileVersion
	members  map[memberKey]domain.Role
	activity []domain.ActivityEvent
}

var (
	_ core.ContentStore  = (*Store)(nil)
	_ core.MemberStore   = (*Store)(nil)
	_ core.ActivityStore = (*Store)(nil)
	_ core.ActivityFeed  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		files:    make(map[domain.FileID]*file),
		versions: make(map[domain.FileID][]domain.FileVersion),
		members:  make(map[memberKey]domain.Role),
	}
}

func (s *Store) GetFileContent(ctx context.Context, fileID domain.FileID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok {
		return "", fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}
	return f.content, nil
}

// SetFileContent upserts; the real CRUD layer creates files, this store
// accepts writes for ids it has not seen.
func (s *Store) SetFileContent(ctx context.Context, fileID domain.FileID, content string, editor domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileID] = &file{content: content, lastEditedBy: editor, updatedAt: time.Now()}
	return nil
}

func (s *Store) AppendVersionSnapshot(ctx context.Context, fileID domain.FileID, content string, editor domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[fileID] = append(s.versions[fileID], domain.FileVersion{
		ID:        uuid.NewString(),
		FileID:    fileID,
		Content:   content,
		EditedBy:  editor,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *Store) Versions(fileID domain.FileID) []domain.FileVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FileVersion(nil), s.versions[fileID]...)
}

func (s *Store) GetRole(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.members[memberKey{ws, user}]
	if !ok {
		return "", domain.ErrNotMember
	}
	return role, nil
}

func (s *Store) SetRole(ctx context.Context, ws domain.WorkspaceID, user domain.UserID, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{ws, user}] = role
	return nil
}

func (s *Store) RemoveMember(ws domain.WorkspaceID, user domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{ws, user})
}

func (s *Store) AppendActivity(ctx context.Context, ev domain.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, ev)
	return nil
}

// ListActivity returns the feed of ws, newest first.
func (s *Store) ListActivity(ctx context.Context, ws domain.WorkspaceID, limit int) ([]domain.ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ActivityEvent
	for i := len(s.activity) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.activity[i].WorkspaceID == ws {
			out = append(out, s.activity[i])
		}
	}
	return out, nil
}

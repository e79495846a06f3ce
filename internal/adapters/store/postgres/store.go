package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the content, membership and activity capabilities.
type Store struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

var (
	_ core.ContentStore  = (*Store)(nil)
	_ core.MemberStore   = (*Store)(nil)
	_ core.ActivityStore = (*Store)(nil)
	_ core.ActivityFeed  = (*Store)(nil)
)

func NewStore(pool *pgxpool.Pool, tables *TableNames) *Store {
	return &Store{pool: pool, tables: tables}
}

func (s *Store) GetFileContent(ctx context.Context, fileID domain.FileID) (string, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE id = $1`, s.tables.Files)
	var content string
	if err := s.pool.QueryRow(ctx, query, string(fileID)).Scan(&content); err != nil {
		if IsPgNoRowsError(err) {
			return "", fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("get file content: %w", err)
	}
	return content, nil
}

// SetFileContent updates an existing file. Files are created by the CRUD
// layer, so an unknown id is reported as not found.
func (s *Store) SetFileContent(ctx context.Context, fileID domain.FileID, content string, editor domain.UserID) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $2, last_edited_by = $3, updated_at = $4
		WHERE id = $1
	`, s.tables.Files)
	tag, err := s.pool.Exec(ctx, query, string(fileID), content, nullable(string(editor)), time.Now())
	if err != nil {
		return fmt.Errorf("set file content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendVersionSnapshot(ctx context.Context, fileID domain.FileID, content string, editor domain.UserID) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, file_id, content, edited_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.tables.Versions)
	_, err := s.pool.Exec(ctx, query, uuid.NewString(), string(fileID), content, nullable(string(editor)), time.Now())
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
		}
		return fmt.Errorf("append version: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (domain.Role, error) {
	query := fmt.Sprintf(`SELECT role FROM %s WHERE workspace_id = $1 AND user_id = $2`, s.tables.Members)
	var role string
	if err := s.pool.QueryRow(ctx, query, string(ws), string(user)).Scan(&role); err != nil {
		if IsPgNoRowsError(err) {
			return "", domain.ErrNotMember
		}
		return "", fmt.Errorf("get role: %w", err)
	}
	return domain.ParseRole(role)
}

func (s *Store) SetRole(ctx context.Context, ws domain.WorkspaceID, user domain.UserID, role domain.Role) error {
	query := fmt.Sprintf(`UPDATE %s SET role = $3 WHERE workspace_id = $1 AND user_id = $2`, s.tables.Members)
	tag, err := s.pool.Exec(ctx, query, string(ws), string(user), string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotMember
	}
	return nil
}

func (s *Store) AppendActivity(ctx context.Context, ev domain.ActivityEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("encode activity metadata: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, workspace_id, user_id, action_type, target_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, s.tables.Activity)
	_, err = s.pool.Exec(ctx, query,
		ev.ID,
		string(ev.WorkspaceID),
		string(ev.UserID),
		string(ev.ActionType),
		nullable(ev.TargetID),
		string(meta),
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest events of ws first.
func (s *Store) ListActivity(ctx context.Context, ws domain.WorkspaceID, limit int) ([]domain.ActivityEvent, error) {
	query := fmt.Sprintf(`
		SELECT id, workspace_id, user_id, action_type, COALESCE(target_id, ''), metadata, created_at
		FROM %s
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, s.tables.Activity)
	rows, err := s.pool.Query(ctx, query, string(ws), limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityEvent
	for rows.Next() {
		var (
			ev   domain.ActivityEvent
			meta []byte
		)
		if err := rows.Scan(&ev.ID, &ev.WorkspaceID, &ev.UserID, &ev.ActionType, &ev.TargetID, &meta, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("decode activity metadata: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

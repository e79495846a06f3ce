package domain

import "time"

type ActionType string

const (
	ActionUserJoined  ActionType = "USER_JOINED"
	ActionUserLeft    ActionType = "USER_LEFT"
	ActionFileUpdated ActionType = "FILE_UPDATED"
	ActionRoleChanged ActionType = "ROLE_CHANGED"
)

// ActivityEvent is an immutable, append-only feed record.
type ActivityEvent struct {
	ID          string         `json:"id"`
	WorkspaceID WorkspaceID    `json:"workspaceId"`
	UserID      UserID         `json:"userId"`
	ActionType  ActionType     `json:"actionType"`
	TargetID    string         `json:"targetId,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// FileVersion is an immutable content snapshot.
type FileVersion struct {
	ID        string    `json:"id"`
	FileID    FileID    `json:"fileId"`
	Content   string    `json:"content"`
	EditedBy  UserID    `json:"editedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

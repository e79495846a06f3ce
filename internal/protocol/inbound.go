package protocol

import (
	"encoding/json"

	"github.com/codesync/collab/internal/domain"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxIDLen = domain.MaxIDLen

type JoinWorkspaceMsg struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Color       string `json:"color"`
}

func (m JoinWorkspaceMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.WorkspaceID, validation.Required, validation.Length(1, maxIDLen)),
		validation.Field(&m.UserID, validation.Length(0, maxIDLen)),
		validation.Field(&m.Color, validation.Length(0, 32)),
	)
}

type JoinFileMsg struct {
	FileID string `json:"fileId"`
}

func (m JoinFileMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.FileID, validation.Required, validation.Length(1, maxIDLen)),
	)
}

type CodeChangeMsg struct {
	FileID string `json:"fileId"`
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

func (m CodeChangeMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.FileID, validation.Required, validation.Length(1, maxIDLen)),
	)
}

type CursorPositionMsg struct {
	FileID   string          `json:"fileId"`
	Position json.RawMessage `json:"position"`
	Username string          `json:"username"`
	Color    string          `json:"color"`
}

func (m CursorPositionMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.FileID, validation.Required, validation.Length(1, maxIDLen)),
	)
}

type VoiceMembershipMsg struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
}

func (m VoiceMembershipMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.WorkspaceID, validation.Required, validation.Length(1, maxIDLen)),
	)
}

type VoiceRelayMsg struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

func (m VoiceRelayMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Payload, validation.Required),
	)
}

type CommentRelayMsg struct {
	WorkspaceID string          `json:"workspaceId"`
	Comment     json.RawMessage `json:"comment"`
	CommentID   string          `json:"commentId"`
}

func (m CommentRelayMsg) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.WorkspaceID, validation.Required, validation.Length(1, maxIDLen)),
	)
}

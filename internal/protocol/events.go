// Package protocol defines the JSON frames exchanged over the collaboration
// socket. Every frame is a flat object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Client to server.
const (
	JoinWorkspace     = "join_workspace"
	LeaveWorkspace    = "leave_workspace"
	JoinFile          = "join_file"
	CodeChange        = "code_change"
	CursorPosition    = "cursor_position"
	RoleSync          = "role_sync"
	VoiceJoin         = "voice_join"
	VoiceLeave        = "voice_leave"
	VoiceOffer        = "voice_offer"
	VoiceAnswer       = "voice_answer"
	VoiceICECandidate = "voice_ice_candidate"
	CommentAdded      = "comment_added"
	CommentUpdated    = "comment_updated"
	CommentDeleted    = "comment_deleted"
	ReactionToggled   = "reaction_toggled"
	Ping              = "ping"
)

// Server to client.
const (
	WorkspaceJoined = "workspace_joined"
	UserJoined      = "user_joined"
	UserLeft        = "user_left"
	FileJoined      = "file_joined"
	CodeUpdate      = "code_update"
	CursorUpdate    = "cursor_update"
	RoleChanged     = "role_changed"
	MemberUpdated   = "member_updated"
	RoleSynced      = "role_synced"
	VoiceJoined     = "voice_joined"
	VoiceUserJoined = "voice_user_joined"
	VoiceUserLeft   = "voice_user_left"
	NewComment      = "new_comment"
	ReactionUpdated = "reaction_updated"
	ActivityUpdate  = "activity_update"
	Error           = "error"
	Pong            = "pong"
)

type WorkspaceJoinedMsg struct {
	Type        string             `json:"type"`
	WorkspaceID domain.WorkspaceID `json:"workspaceId"`
	Role        domain.Role        `json:"role"`
	Members     []core.MemberDTO   `json:"members"`
}

type UserJoinedMsg struct {
	Type      string         `json:"type"`
	UserID    core.SessionID `json:"userId"`
	ProfileID domain.UserID  `json:"profileId"`
	Username  string         `json:"username"`
	Color     string         `json:"color"`
	Role      domain.Role    `json:"role"`
}

type UserLeftMsg struct {
	Type      string         `json:"type"`
	UserID    core.SessionID `json:"userId"`
	ProfileID domain.UserID  `json:"profileId"`
	Username  string         `json:"username"`
}

type FileJoinedMsg struct {
	Type   string        `json:"type"`
	FileID domain.FileID `json:"fileId"`
	Code   string        `json:"code"`
}

type CodeUpdateMsg struct {
	Type      string        `json:"type"`
	FileID    domain.FileID `json:"fileId"`
	Code      string        `json:"code"`
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username"`
	Timestamp time.Time     `json:"timestamp"`
}

type CursorUpdateMsg struct {
	Type     string          `json:"type"`
	UserID   core.SessionID  `json:"userId"`
	Position json.RawMessage `json:"position"`
	Username string          `json:"username"`
	Color    string          `json:"color"`
}

type RoleChangedMsg struct {
	Type        string             `json:"type"`
	WorkspaceID domain.WorkspaceID `json:"workspaceId"`
	Role        domain.Role        `json:"role"`
	OldRole     domain.Role        `json:"oldRole"`
}

type MemberUpdatedMsg struct {
	Type    string        `json:"type"`
	UserID  domain.UserID `json:"userId"`
	Role    domain.Role   `json:"role"`
	OldRole domain.Role   `json:"oldRole"`
}

type RoleSyncedMsg struct {
	Type string      `json:"type"`
	Role domain.Role `json:"role"`
}

type VoiceParticipant struct {
	UserID   domain.UserID  `json:"userId"`
	Username string         `json:"username"`
	SocketID core.SessionID `json:"socketId"`
}

type VoiceJoinedMsg struct {
	Type         string             `json:"type"`
	WorkspaceID  domain.WorkspaceID `json:"workspaceId"`
	ICEServers   []webrtc.ICEServer `json:"iceServers"`
	Participants []VoiceParticipant `json:"participants"`
}

type VoicePresenceMsg struct {
	Type string `json:"type"`
	VoiceParticipant
}

type VoiceSignalMsg struct {
	Type    string          `json:"type"`
	From    domain.UserID   `json:"from"`
	To      domain.UserID   `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type CommentMsg struct {
	Type      string          `json:"type"`
	Comment   json.RawMessage `json:"comment,omitempty"`
	CommentID string          `json:"commentId,omitempty"`
}

type ActivityUpdateMsg struct {
	Type        string             `json:"type"`
	WorkspaceID domain.WorkspaceID `json:"workspaceId"`
}

type ErrorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Encode marshals a frame. Frames are plain structs, so a failure here is a
// programming error and is returned for the caller to log.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

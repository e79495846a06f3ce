package domain

type (
	WorkspaceID string
	FileID      string
)

// RoomKind separates the three broadcast scopes a connection can be in.
type RoomKind uint8

const (
	WorkspaceRoom RoomKind = iota + 1
	FileRoom
	VoiceRoom
)

func (k RoomKind) String() string {
	switch k {
	case WorkspaceRoom:
		return "workspace"
	case FileRoom:
		return "file"
	case VoiceRoom:
		return "voice"
	}
	return "unknown"
}

// RoomKey identifies one room. Voice rooms are keyed by workspace id.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func (k RoomKey) String() string { return k.Kind.String() + ":" + k.ID }

func WorkspaceKey(id WorkspaceID) RoomKey { return RoomKey{Kind: WorkspaceRoom, ID: string(id)} }
func FileKey(id FileID) RoomKey           { return RoomKey{Kind: FileRoom, ID: string(id)} }
func VoiceKey(id WorkspaceID) RoomKey     { return RoomKey{Kind: VoiceRoom, ID: string(id)} }

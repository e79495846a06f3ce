package orch

import "github.com/codesync/collab/internal/domain"

// DenyReason explains why a real-time action was dropped. Denials are never
// sent to the client; they exist for logs and tests.
type DenyReason string

const (
	DenyNotMember         DenyReason = "not_member"
	DenyLookupFailed      DenyReason = "lookup_failed"
	DenyInvalidIdentity   DenyReason = "invalid_identity"
	DenyDisconnected      DenyReason = "disconnected"
	DenyNotAdmitted       DenyReason = "not_admitted"
	DenyWorkspaceMismatch DenyReason = "workspace_mismatch"
	DenyNotInFileRoom     DenyReason = "not_in_file_room"
	DenyReadOnly          DenyReason = "read_only"
	DenyNotInVoice        DenyReason = "not_in_voice"
	DenyUnknownEvent      DenyReason = "unknown_event"
)

// Decision is the tagged result of a gated action: accepted, or denied with a reason.
type Decision struct {
	Denied DenyReason
	Role   domain.Role
}

func (d Decision) Accepted() bool { return d.Denied == "" }

func accept(role domain.Role) Decision { return Decision{Role: role} }

func deny(reason DenyReason) Decision { return Decision{Denied: reason} }

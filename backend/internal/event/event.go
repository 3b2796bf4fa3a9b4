package event

import "time"

// Event names exchanged with the collaboration service. Requests and their
// broadcast counterparts share one envelope type; unused fields stay empty.
const (
	TypeJoinDocument        = "join-document"
	TypeDocumentJoined      = "document-joined"
	TypeDocumentChange      = "document-change"
	TypeDocumentUpdated     = "document-updated"
	TypeTitleChange         = "title-change"
	TypeTitleUpdated        = "title-updated"
	TypeCursorUpdate        = "cursor-update"
	TypeUserTyping          = "user-typing"
	TypeInviteUser          = "invite-user"
	TypeInvitationSent      = "invitation-sent"
	TypeInvitationFailed    = "invitation-failed"
	TypeChangePermission    = "change-permission"
	TypePermissionChanged   = "permission-changed"
	TypeRemoveCollaborator  = "remove-collaborator"
	TypeCollaboratorRemoved = "collaborator-removed"
	TypeUserJoined          = "user-joined"
	TypeUserLeft            = "user-left"
	TypeError               = "error"
)

type Participant struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Status        string `json:"status,omitempty"`
	Role          string `json:"role,omitempty"`
}

// Range is a selection span in document coordinates.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Envelope struct {
	Type          string        `json:"type"`
	DocID         string        `json:"docId,omitempty"`
	ParticipantID string        `json:"participantId,omitempty"`
	DisplayName   string        `json:"displayName,omitempty"`
	Content       string        `json:"content,omitempty"`
	Title         string        `json:"title,omitempty"`
	Position      int           `json:"position,omitempty"`
	Selection     *Range        `json:"selection,omitempty"`
	IsTyping      bool          `json:"isTyping"`
	Identifier    string        `json:"identifier,omitempty"`
	Role          string        `json:"role,omitempty"`
	Participants  []Participant `json:"participants,omitempty"`
	Timestamp     time.Time     `json:"timestamp,omitzero"`
	Message       string        `json:"message,omitempty"`
}

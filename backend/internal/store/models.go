package store

import "time"

// GORM models backing the collaboration stores. IDs are UUID strings so the
// client can mint them without a round trip.

type Document struct {
	ID         string `gorm:"primaryKey;size:36"`
	OwnerID    string `gorm:"size:36;index"`
	Title      string `gorm:"size:255"`
	Content    string `gorm:"type:longtext"`
	LinkAccess string `gorm:"size:32;default:restricted"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CommentThread struct {
	ID          string `gorm:"primaryKey;size:36"`
	DocumentID  string `gorm:"size:36;index"`
	AnchorStart *int
	AnchorEnd   *int
	Resolved    bool
	CreatedAt   time.Time
	Comments    []CommentRow `gorm:"foreignKey:ThreadID"`
}

// CommentRow is one comment in a thread. ParentID is empty for top-level
// comments and holds the top-level comment's ID for replies.
type CommentRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	ThreadID  string `gorm:"size:36;index"`
	ParentID  string `gorm:"size:36;index"`
	AuthorID  string `gorm:"size:36"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}

// CollaboratorRow holds one access grant. The unique index over
// (document_id, identifier) makes duplicate invites a 1062 at the database,
// which the store maps to access.ErrAlreadyCollaborator.
type CollaboratorRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	DocumentID    string `gorm:"size:36;uniqueIndex:idx_doc_identifier"`
	Identifier    string `gorm:"size:255;uniqueIndex:idx_doc_identifier"`
	ParticipantID string `gorm:"size:36;index"`
	DisplayName   string `gorm:"size:255"`
	Role          string `gorm:"size:32"`
	GrantedBy     string `gorm:"size:36"`
	CreatedAt     time.Time
}

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"size:255;uniqueIndex"`
	DisplayName  string `gorm:"size:255"`
	Avatar       string `gorm:"size:512"`
	PasswordHash []byte `gorm:"size:60"`
	CreatedAt    time.Time
}

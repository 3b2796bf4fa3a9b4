package access

import (
	"context"
	"errors"
	"regexp"
)

type Role string

// Roles in ascending privilege. Exactly one owner per document.
const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleOwner     Role = "owner"
)

var roleRank = map[Role]int{
	RoleViewer:    1,
	RoleCommenter: 2,
	RoleEditor:    3,
	RoleOwner:     4,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants the privilege of required or more.
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

type LinkAccess string

const (
	LinkRestricted LinkAccess = "restricted"
	LinkAnyone     LinkAccess = "anyone-with-link"
	LinkPublic     LinkAccess = "public"
)

func (l LinkAccess) Valid() bool {
	switch l {
	case LinkRestricted, LinkAnyone, LinkPublic:
		return true
	}
	return false
}

type Grant struct {
	ParticipantID string
	Identifier    string
	DisplayName   string
	Role          Role
	GrantedBy     string
}

var (
	ErrInvalidIdentifier   = errors.New("invalid collaborator identifier")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidLinkAccess   = errors.New("invalid link access policy")
	ErrSelfInvite          = errors.New("cannot invite yourself")
	ErrAlreadyCollaborator = errors.New("already a collaborator")
	ErrNotOwner            = errors.New("only the owner can change permissions")
	ErrOwnerImmutable      = errors.New("the owner's access cannot be changed")
	ErrGrantNotFound       = errors.New("collaborator not found")
)

var identifierRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Store is the collaboration backend; the manager re-fetches the grant list
// after every mutation, same discipline as the comment manager.
type Store interface {
	ListGrants(ctx context.Context, docID string) ([]Grant, error)
	Invite(ctx context.Context, docID, identifier string, role Role, grantedBy string) error
	ChangeRole(ctx context.Context, docID, participantID string, role Role) error
	Remove(ctx context.Context, docID, participantID string) error
	LinkAccess(ctx context.Context, docID string) (LinkAccess, error)
	SetLinkAccess(ctx context.Context, docID string, policy LinkAccess) error
}

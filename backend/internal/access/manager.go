package access

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Manager enforces the document's sharing policy on behalf of one acting
// participant. Role checks run against the last fetched roster, and every
// mutation re-fetches it.
type Manager struct {
	store Store
	docID string
	// the acting participant and the identifier they signed in with
	actorID         string
	actorIdentifier string

	mu     sync.RWMutex
	grants []Grant
}

func NewManager(store Store, docID, actorID, actorIdentifier string) *Manager {
	return &Manager{
		store:           store,
		docID:           docID,
		actorID:         actorID,
		actorIdentifier: strings.ToLower(actorIdentifier),
	}
}

func (m *Manager) Refresh(ctx context.Context) error {
	grants, err := m.store.ListGrants(ctx, m.docID)
	if err != nil {
		return fmt.Errorf("list collaborators: %w", err)
	}
	m.mu.Lock()
	m.grants = grants
	m.mu.Unlock()
	return nil
}

func (m *Manager) Grants() []Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Grant, len(m.grants))
	copy(out, m.grants)
	return out
}

func (m *Manager) grant(participantID string) (Grant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.grants {
		if g.ParticipantID == participantID {
			return g, true
		}
	}
	return Grant{}, false
}

// ActorRole is the acting participant's current role, RoleViewer if unknown.
func (m *Manager) ActorRole() Role {
	if g, ok := m.grant(m.actorID); ok {
		return g.Role
	}
	return RoleViewer
}

// Invite grants a new collaborator access by identifier (email). Rejected for
// malformed identifiers, self-invites and identifiers already in the roster.
func (m *Manager) Invite(ctx context.Context, identifier string, role Role) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if !identifierRe.MatchString(identifier) {
		return ErrInvalidIdentifier
	}
	if !role.Valid() || role == RoleOwner {
		return ErrInvalidRole
	}
	if identifier == m.actorIdentifier {
		return ErrSelfInvite
	}
	m.mu.RLock()
	for _, g := range m.grants {
		if strings.EqualFold(g.Identifier, identifier) {
			m.mu.RUnlock()
			return ErrAlreadyCollaborator
		}
	}
	m.mu.RUnlock()
	if err := m.store.Invite(ctx, m.docID, identifier, role, m.actorID); err != nil {
		return fmt.Errorf("invite %s: %w", identifier, err)
	}
	return m.Refresh(ctx)
}

// ChangeRole updates another collaborator's role. Owner only; the owner's own
// grant is immutable (there is exactly one owner).
func (m *Manager) ChangeRole(ctx context.Context, participantID string, role Role) error {
	if m.ActorRole() != RoleOwner {
		return ErrNotOwner
	}
	if !role.Valid() || role == RoleOwner {
		return ErrInvalidRole
	}
	target, ok := m.grant(participantID)
	if !ok {
		return ErrGrantNotFound
	}
	if target.Role == RoleOwner {
		return ErrOwnerImmutable
	}
	if err := m.store.ChangeRole(ctx, m.docID, participantID, role); err != nil {
		return fmt.Errorf("change role of %s: %w", participantID, err)
	}
	return m.Refresh(ctx)
}

// Remove revokes a collaborator's access. Owner only, and the owner cannot
// be removed.
func (m *Manager) Remove(ctx context.Context, participantID string) error {
	if m.ActorRole() != RoleOwner {
		return ErrNotOwner
	}
	target, ok := m.grant(participantID)
	if !ok {
		return ErrGrantNotFound
	}
	if target.Role == RoleOwner {
		return ErrOwnerImmutable
	}
	if err := m.store.Remove(ctx, m.docID, participantID); err != nil {
		return fmt.Errorf("remove %s: %w", participantID, err)
	}
	return m.Refresh(ctx)
}

// LinkAccess reads the document's link policy, independent of per-user grants.
func (m *Manager) LinkAccess(ctx context.Context) (LinkAccess, error) {
	return m.store.LinkAccess(ctx, m.docID)
}

// SetLinkAccess updates the link policy. Owner only.
func (m *Manager) SetLinkAccess(ctx context.Context, policy LinkAccess) error {
	if m.ActorRole() != RoleOwner {
		return ErrNotOwner
	}
	if !policy.Valid() {
		return ErrInvalidLinkAccess
	}
	if err := m.store.SetLinkAccess(ctx, m.docID, policy); err != nil {
		return fmt.Errorf("set link access: %w", err)
	}
	return nil
}

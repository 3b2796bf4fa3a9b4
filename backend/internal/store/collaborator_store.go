package store

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"collabsync/backend/internal/access"
)

// CollaboratorStore backs access.Manager with MySQL. The (document, identifier)
// unique index catches concurrent duplicate invites that the manager's own
// pre-check cannot see.
type CollaboratorStore struct{ db *gorm.DB }

func NewCollaboratorStore(db *gorm.DB) *CollaboratorStore {
	return &CollaboratorStore{db: db}
}

func (s *CollaboratorStore) ListGrants(ctx context.Context, docID string) ([]access.Grant, error) {
	var rows []CollaboratorRow
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	grants := make([]access.Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, access.Grant{
			ParticipantID: row.ParticipantID,
			Identifier:    row.Identifier,
			DisplayName:   row.DisplayName,
			Role:          access.Role(row.Role),
			GrantedBy:     row.GrantedBy,
		})
	}
	return grants, nil
}

func (s *CollaboratorStore) Invite(ctx context.Context, docID, identifier string, role access.Role, grantedBy string) error {
	row := CollaboratorRow{
		DocumentID: docID,
		Identifier: identifier,
		Role:       string(role),
		GrantedBy:  grantedBy,
	}
	// Invitees with an account get their existing participant id; anyone
	// else gets a fresh one that their account adopts on first sign-in.
	var u User
	err := s.db.WithContext(ctx).First(&u, "email = ?", identifier).Error
	switch {
	case err == nil:
		row.ParticipantID = u.ID
		row.DisplayName = u.DisplayName
	case errors.Is(err, gorm.ErrRecordNotFound):
		row.ParticipantID = uuid.NewString()
	default:
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return access.ErrAlreadyCollaborator
		}
		return err
	}
	return nil
}

func (s *CollaboratorStore) ChangeRole(ctx context.Context, docID, participantID string, role access.Role) error {
	res := s.db.WithContext(ctx).Model(&CollaboratorRow{}).
		Where("document_id = ? AND participant_id = ?", docID, participantID).
		Update("role", string(role))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return access.ErrGrantNotFound
	}
	return nil
}

func (s *CollaboratorStore) Remove(ctx context.Context, docID, participantID string) error {
	res := s.db.WithContext(ctx).
		Where("document_id = ? AND participant_id = ?", docID, participantID).
		Delete(&CollaboratorRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return access.ErrGrantNotFound
	}
	return nil
}

func (s *CollaboratorStore) LinkAccess(ctx context.Context, docID string) (access.LinkAccess, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("link_access").First(&doc, "id = ?", docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", err
	}
	return access.LinkAccess(doc.LinkAccess), nil
}

func (s *CollaboratorStore) SetLinkAccess(ctx context.Context, docID string, policy access.LinkAccess) error {
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", docID).
		Update("link_access", string(policy))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", docID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrDocumentNotFound
		}
	}
	return nil
}

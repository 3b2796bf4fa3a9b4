package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore persists document snapshots. It satisfies docsync.Store so
// the persistence bridge can flush through it directly.
type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, ownerID, title string) (string, error) {
	doc := Document{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		LinkAccess: "restricted",
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *DocumentStore) Load(ctx context.Context, docID string) (title, content string, err error) {
	var doc Document
	err = s.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrDocumentNotFound
		}
		return "", "", err
	}
	return doc.Title, doc.Content, nil
}

// Save replaces the stored snapshot wholesale. Last write wins; there is no
// merge step.
func (s *DocumentStore) Save(ctx context.Context, docID, title, content string) error {
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", docID).
		Updates(map[string]any{"title": title, "content": content})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *DocumentStore) Owner(ctx context.Context, docID string) (string, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("owner_id").First(&doc, "id = ?", docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", err
	}
	return doc.OwnerID, nil
}

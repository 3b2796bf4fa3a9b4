package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"collabsync/backend/internal/comments"
	"collabsync/backend/internal/event"
)

// CommentStore backs comments.Manager with MySQL. Deleting a top-level
// comment cascades to its replies inside one transaction; a thread whose
// last comment goes away is dropped with it.
type CommentStore struct{ db *gorm.DB }

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

func (s *CommentStore) ListThreads(ctx context.Context, docID string) ([]comments.Thread, error) {
	var rows []CommentThread
	err := s.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]comments.Thread, 0, len(rows))
	for _, row := range rows {
		t := comments.Thread{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Resolved:   row.Resolved,
		}
		if row.AnchorStart != nil && row.AnchorEnd != nil {
			t.Anchor = &event.Range{Start: *row.AnchorStart, End: *row.AnchorEnd}
		}
		for _, c := range row.Comments {
			t.Comments = append(t.Comments, comments.Comment{
				ID:        c.ID,
				AuthorID:  c.AuthorID,
				Content:   c.Content,
				ParentID:  c.ParentID,
				CreatedAt: c.CreatedAt,
			})
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *CommentStore) CreateThread(ctx context.Context, docID, authorID, content string, anchor *event.Range) (string, error) {
	thread := CommentThread{
		ID:         uuid.NewString(),
		DocumentID: docID,
	}
	if anchor != nil {
		start, end := anchor.Start, anchor.End
		thread.AnchorStart = &start
		thread.AnchorEnd = &end
	}
	first := CommentRow{
		ID:       uuid.NewString(),
		ThreadID: thread.ID,
		AuthorID: authorID,
		Content:  content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&thread).Error; err != nil {
			return err
		}
		return tx.Create(&first).Error
	})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (s *CommentStore) AddReply(ctx context.Context, threadID, parentID, authorID, content string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent CommentRow
		err := tx.First(&parent, "id = ? AND thread_id = ?", parentID, threadID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return comments.ErrCommentNotFound
			}
			return err
		}
		if parent.ParentID != "" {
			return comments.ErrReplyDepth
		}
		reply := CommentRow{
			ID:       uuid.NewString(),
			ThreadID: threadID,
			ParentID: parentID,
			AuthorID: authorID,
			Content:  content,
		}
		return tx.Create(&reply).Error
	})
}

func (s *CommentStore) SetResolved(ctx context.Context, threadID string, resolved bool) error {
	res := s.db.WithContext(ctx).Model(&CommentThread{}).
		Where("id = ?", threadID).
		Update("resolved", resolved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&CommentThread{}).Where("id = ?", threadID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return comments.ErrThreadNotFound
		}
	}
	return nil
}

func (s *CommentStore) DeleteComment(ctx context.Context, threadID, commentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row CommentRow
		err := tx.First(&row, "id = ? AND thread_id = ?", commentID, threadID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return comments.ErrCommentNotFound
			}
			return err
		}
		if err := tx.Delete(&CommentRow{}, "id = ?", commentID).Error; err != nil {
			return err
		}
		if row.ParentID == "" {
			if err := tx.Delete(&CommentRow{}, "thread_id = ? AND parent_id = ?", threadID, commentID).Error; err != nil {
				return err
			}
		}
		var remaining int64
		if err := tx.Model(&CommentRow{}).Where("thread_id = ?", threadID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Delete(&CommentThread{}, "id = ?", threadID).Error
		}
		return nil
	})
}

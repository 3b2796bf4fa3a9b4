package comments

import (
	"context"
	"errors"
	"time"

	"collabsync/backend/internal/event"
)

var (
	ErrThreadNotFound  = errors.New("comment thread not found")
	ErrCommentNotFound = errors.New("comment not found")
	// replies are one level deep: the parent must be a top-level comment
	ErrReplyDepth = errors.New("cannot reply to a reply")
	ErrEmptyBody  = errors.New("comment body is empty")
)

type Comment struct {
	ID        string
	AuthorID  string
	Content   string
	ParentID  string
	CreatedAt time.Time
}

type Thread struct {
	ID         string
	DocumentID string
	Anchor     *event.Range
	Resolved   bool
	Comments   []Comment
}

// Store is the comment backend. No incremental diff protocol: the manager
// re-fetches the full thread list after every mutation.
type Store interface {
	ListThreads(ctx context.Context, docID string) ([]Thread, error)
	CreateThread(ctx context.Context, docID, authorID, content string, anchor *event.Range) (threadID string, err error)
	AddReply(ctx context.Context, threadID, parentID, authorID, content string) error
	SetResolved(ctx context.Context, threadID string, resolved bool) error
	DeleteComment(ctx context.Context, threadID, commentID string) error
}

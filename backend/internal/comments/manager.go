package comments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"collabsync/backend/internal/event"
)

// Manager owns the client view of a document's comment threads. Every
// mutation goes to the store first and then re-synchronizes by re-fetching
// the full list; there is no optimistic local patch, so a failed mutation
// leaves the previously fetched state untouched.
type Manager struct {
	store Store
	docID string
	self  string

	mu      sync.RWMutex
	threads []Thread
}

func NewManager(store Store, docID, self string) *Manager {
	return &Manager{store: store, docID: docID, self: self}
}

// Refresh re-fetches the thread list. On error the cached state is kept.
func (m *Manager) Refresh(ctx context.Context) error {
	threads, err := m.store.ListThreads(ctx, m.docID)
	if err != nil {
		return fmt.Errorf("list comment threads: %w", err)
	}
	m.mu.Lock()
	m.threads = threads
	m.mu.Unlock()
	return nil
}

// Threads returns the last successfully fetched state.
func (m *Manager) Threads() []Thread {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Thread, len(m.threads))
	copy(out, m.threads)
	return out
}

func (m *Manager) Thread(threadID string) (Thread, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.threads {
		if t.ID == threadID {
			return t, true
		}
	}
	return Thread{}, false
}

// Create opens a new top-level thread, optionally anchored to a selection.
func (m *Manager) Create(ctx context.Context, content string, anchor *event.Range) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyBody
	}
	threadID, err := m.store.CreateThread(ctx, m.docID, m.self, content, anchor)
	if err != nil {
		return "", fmt.Errorf("create comment thread: %w", err)
	}
	return threadID, m.Refresh(ctx)
}

// Reply adds a comment under a top-level comment. Exactly one nesting level:
// replying to a reply is rejected before the store is touched.
func (m *Manager) Reply(ctx context.Context, threadID, parentID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyBody
	}
	thread, ok := m.Thread(threadID)
	if !ok {
		return ErrThreadNotFound
	}
	found := false
	for _, c := range thread.Comments {
		if c.ID == parentID {
			if c.ParentID != "" {
				return ErrReplyDepth
			}
			found = true
			break
		}
	}
	if !found {
		return ErrCommentNotFound
	}
	if err := m.store.AddReply(ctx, threadID, parentID, m.self, content); err != nil {
		return fmt.Errorf("reply to comment: %w", err)
	}
	return m.Refresh(ctx)
}

// Resolve sets the resolution flag. Idempotent either way; un-resolving an
// already resolved thread is allowed.
func (m *Manager) Resolve(ctx context.Context, threadID string, resolved bool) error {
	if _, ok := m.Thread(threadID); !ok {
		return ErrThreadNotFound
	}
	if err := m.store.SetResolved(ctx, threadID, resolved); err != nil {
		return fmt.Errorf("resolve comment thread: %w", err)
	}
	return m.Refresh(ctx)
}

// Delete removes a comment. Deleting a top-level comment removes its replies
// as well; the store handles the cascade and the re-fetch confirms it.
func (m *Manager) Delete(ctx context.Context, threadID, commentID string) error {
	if _, ok := m.Thread(threadID); !ok {
		return ErrThreadNotFound
	}
	if err := m.store.DeleteComment(ctx, threadID, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return m.Refresh(ctx)
}

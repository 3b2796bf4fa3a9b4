package docsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collabsync/backend/internal/event"
)

// Broadcaster propagates full-content snapshots between participants and
// applies remote snapshots locally.
//
// Concurrent edits from two participants inside one propagation round-trip
// are not merged: the later-arriving snapshot overwrites the earlier one
// (last-writer-wins full replace). That trade-off is deliberate and load
// bearing; do not "fix" it without changing the convergence contract.
type Broadcaster struct {
	self  string
	doc   *Document
	guard *RemoteApplyGuard
	emit  func(ev event.Envelope)
	log   zerolog.Logger

	// lastSent is the reference for no-op elision; emit paths run on the
	// editor goroutine, apply on the session read loop
	mu       sync.Mutex
	lastSent string
}

func NewBroadcaster(self string, doc *Document, guard *RemoteApplyGuard, emit func(event.Envelope), log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		self:     self,
		doc:      doc,
		guard:    guard,
		emit:     emit,
		log:      log.With().Str("component", "broadcaster").Logger(),
		lastSent: doc.Content(),
	}
}

// LocalEdit captures a content mutation from the local surface and emits it
// as a change event. Identical content to the last emission is elided. While
// the guard is held the mutation is the application of a remote snapshot, not
// a new local edit, and must not be re-broadcast.
func (b *Broadcaster) LocalEdit(content string) {
	if b.guard.Held() {
		return
	}
	b.doc.SetContent(content)
	b.mu.Lock()
	if content == b.lastSent {
		b.mu.Unlock()
		return
	}
	b.lastSent = content
	b.mu.Unlock()
	b.emit(event.Envelope{
		Type:          event.TypeDocumentChange,
		DocID:         b.doc.ID(),
		ParticipantID: b.self,
		Content:       content,
		Timestamp:     time.Now(),
	})
}

// ApplyRemote replaces the local content with a remote snapshot. Events whose
// origin is the local participant are echoes of previously sent changes and
// are discarded.
func (b *Broadcaster) ApplyRemote(ev event.Envelope) {
	if ev.ParticipantID == b.self {
		return
	}
	if !b.guard.Acquire() {
		b.log.Warn().Str("origin", ev.ParticipantID).Msg("dropping remote change, apply already in progress")
		return
	}
	defer b.guard.Release()

	content := SanitizeContent(ev.Content)
	b.doc.SetContent(content)
	// the remote snapshot is now the reference for no-op elision; an edit
	// reproducing it exactly must not echo back out
	b.mu.Lock()
	b.lastSent = content
	b.mu.Unlock()
}

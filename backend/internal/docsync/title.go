package docsync

import (
	"sync"
	"time"

	"collabsync/backend/internal/event"
	"collabsync/backend/internal/signal"
)

// TitleSync propagates document title changes on a channel separate from
// content. Local edits are debounced; remote application shares the
// broadcaster's self-filter and apply-guard discipline.
type TitleSync struct {
	self     string
	doc      *Document
	guard    *RemoteApplyGuard
	debounce *signal.Debouncer
	emit     func(ev event.Envelope)

	mu       sync.Mutex
	lastSent string
}

func NewTitleSync(self string, doc *Document, guard *RemoteApplyGuard, window time.Duration, emit func(event.Envelope)) *TitleSync {
	return &TitleSync{
		self:     self,
		doc:      doc,
		guard:    guard,
		debounce: signal.NewDebouncer(window),
		emit:     emit,
		lastSent: doc.Title(),
	}
}

// LocalEdit records a title keystroke. Emission is debounced so the title
// goes out once per pause, not once per character.
func (t *TitleSync) LocalEdit(title string) {
	if t.guard.Held() {
		return
	}
	t.doc.SetTitle(title)
	t.debounce.Trigger(func() {
		current := t.doc.Title()
		t.mu.Lock()
		if current == t.lastSent {
			t.mu.Unlock()
			return
		}
		t.lastSent = current
		t.mu.Unlock()
		t.emit(event.Envelope{
			Type:          event.TypeTitleChange,
			DocID:         t.doc.ID(),
			ParticipantID: t.self,
			Title:         current,
		})
	})
}

func (t *TitleSync) ApplyRemote(ev event.Envelope) {
	if ev.ParticipantID == t.self {
		return
	}
	if !t.guard.Acquire() {
		return
	}
	defer t.guard.Release()
	title := SanitizeTitle(ev.Title)
	t.doc.SetTitle(title)
	t.mu.Lock()
	t.lastSent = title
	t.mu.Unlock()
}

// Flush pushes out any pending debounced title immediately.
func (t *TitleSync) Flush() {
	t.debounce.Flush()
}

func (t *TitleSync) Stop() {
	t.debounce.Stop()
}

package signal

import (
	"sync"
	"time"

	"collabsync/backend/internal/event"
)

// CursorSignal is the latest known cursor/selection of one participant.
// Ephemeral: dropped when the participant leaves, never persisted.
type CursorSignal struct {
	ParticipantID string
	Position      int
	Selection     *event.Range
	At            time.Time
}

// CursorRelay debounces local cursor movement before emission and keeps only
// the most recent remote signal per participant. Older signals are replaced,
// not queued.
type CursorRelay struct {
	mu       sync.RWMutex
	self     string
	debounce *Debouncer
	emit     func(position int, selection *event.Range)
	latest   map[string]CursorSignal
}

func NewCursorRelay(self string, window time.Duration, emit func(position int, selection *event.Range)) *CursorRelay {
	return &CursorRelay{
		self:     self,
		debounce: NewDebouncer(window),
		emit:     emit,
		latest:   make(map[string]CursorSignal),
	}
}

// Move records local cursor movement. Emission is debounced so a selection
// drag does not flood the transport; only the final position of the window
// goes out.
func (r *CursorRelay) Move(position int, selection *event.Range) {
	r.debounce.Trigger(func() {
		r.emit(position, selection)
	})
}

// Store keeps the latest signal for a remote participant. Signals echoing the
// local participant are ignored.
func (r *CursorRelay) Store(ev event.Envelope) {
	if ev.ParticipantID == "" || ev.ParticipantID == r.self {
		return
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	r.mu.Lock()
	r.latest[ev.ParticipantID] = CursorSignal{
		ParticipantID: ev.ParticipantID,
		Position:      ev.Position,
		Selection:     ev.Selection,
		At:            at,
	}
	r.mu.Unlock()
}

func (r *CursorRelay) Latest(participantID string) (CursorSignal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.latest[participantID]
	return s, ok
}

// Snapshot returns a copy of all stored signals for overlay rendering.
func (r *CursorRelay) Snapshot() map[string]CursorSignal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CursorSignal, len(r.latest))
	for k, v := range r.latest {
		out[k] = v
	}
	return out
}

// Drop removes a participant's signal when they leave.
func (r *CursorRelay) Drop(participantID string) {
	r.mu.Lock()
	delete(r.latest, participantID)
	r.mu.Unlock()
}

// Reset clears all signals and cancels pending emission.
func (r *CursorRelay) Reset() {
	r.debounce.Cancel()
	r.mu.Lock()
	r.latest = make(map[string]CursorSignal)
	r.mu.Unlock()
}

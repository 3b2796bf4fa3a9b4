package presence

import (
	"sort"
	"sync"

	"collabsync/backend/internal/event"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusViewing Status = "viewing"
	StatusTyping  Status = "typing"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

type Participant struct {
	ParticipantID string
	DisplayName   string
	Avatar        string
	Status        Status
	Role          string
}

// Registry is the local roster of participants connected to the document.
// Upserts are idempotent and keyed by participant id; a duplicate join never
// produces a duplicate entry.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Participant
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[string]Participant)}
}

func (r *Registry) Upsert(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Status == "" {
		p.Status = StatusActive
	}
	if existing, ok := r.members[p.ParticipantID]; ok {
		// keep fields the join event does not carry
		if p.Avatar == "" {
			p.Avatar = existing.Avatar
		}
		if p.Role == "" {
			p.Role = existing.Role
		}
	}
	r.members[p.ParticipantID] = p
}

func (r *Registry) Remove(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, participantID)
}

// SetStatus updates only the status field, leaving the rest of the record
// intact. Unknown participants are ignored; a typing signal is not a join.
func (r *Registry) SetStatus(participantID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[participantID]
	if !ok {
		return
	}
	p.Status = status
	r.members[participantID] = p
}

// SetRole updates only the role field.
func (r *Registry) SetRole(participantID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[participantID]
	if !ok {
		return
	}
	p.Role = role
	r.members[participantID] = p
}

func (r *Registry) Get(participantID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[participantID]
	return p, ok
}

// List returns the roster ordered by participant id for stable rendering.
func (r *Registry) List() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// ReplaceAll swaps the whole roster, used when a join confirmation delivers
// the authoritative participant list.
func (r *Registry) ReplaceAll(participants []event.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]Participant, len(participants))
	for _, p := range participants {
		status := Status(p.Status)
		if status == "" {
			status = StatusActive
		}
		r.members[p.ParticipantID] = Participant{
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			Avatar:        p.Avatar,
			Status:        status,
			Role:          p.Role,
		}
	}
}

// Reset clears the roster. Called when the session disconnects; presence is
// ephemeral and never survives the connection.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]Participant)
}

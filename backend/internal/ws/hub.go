package ws

import (
	"sync"

	"collabsync/backend/internal/cache"
	"collabsync/backend/internal/event"
)

// Hub tracks which connections are joined to which document room. Fan-out to
// room members happens here; clients never talk to each other directly.
type Hub struct {
	presence cache.PresenceCache
	mu       sync.RWMutex
	// docID -> set of connections; one participant can hold several
	// connections (tabs, devices), so rooms store connections, not ids
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// Broadcast delivers an envelope to every connection in the room.
func (h *Hub) Broadcast(docID string, ev event.Envelope) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(ev)
	}
}

// BroadcastToOthers delivers an envelope to the room except the origin
// connection. The origin already has the state it just sent; echoing it back
// only exercises the client's self-filter.
func (h *Hub) BroadcastToOthers(docID string, origin *Conn, ev event.Envelope) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != origin {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(ev)
	}
}

// Kick force-disconnects every connection of one participant in a room,
// used when their access is revoked.
func (h *Hub) Kick(docID, participantID string) {
	h.mu.RLock()
	var victims []*Conn
	for c := range h.rooms[docID] {
		if c.participantID == participantID {
			victims = append(victims, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range victims {
		c.Close()
	}
}

package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabsync/backend/internal/access"
	"collabsync/backend/internal/cache"
	"collabsync/backend/internal/event"
)

// fakePresence is an in-memory PresenceCache; heartbeats never expire.
type fakePresence struct {
	mu      sync.Mutex
	members map[string]map[string]cache.PresenceMember // docID -> participantID -> member
	cursors map[string][]byte
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		members: make(map[string]map[string]cache.PresenceMember),
		cursors: make(map[string][]byte),
	}
}

func (p *fakePresence) AddMember(_ context.Context, docID, participantID, displayName, role string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[docID] == nil {
		p.members[docID] = make(map[string]cache.PresenceMember)
	}
	p.members[docID][participantID] = cache.PresenceMember{
		ParticipantID: participantID, DisplayName: displayName, Role: role,
	}
	return nil
}

func (p *fakePresence) RemoveMember(_ context.Context, docID, participantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members[docID], participantID)
	delete(p.cursors, docID+"/"+participantID)
	return nil
}

func (p *fakePresence) SetRole(_ context.Context, docID, participantID, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.members[docID][participantID]; ok {
		m.Role = role
		p.members[docID][participantID] = m
	}
	return nil
}

func (p *fakePresence) GetAliveMembers(_ context.Context, docID string) ([]cache.PresenceMember, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []cache.PresenceMember
	for _, m := range p.members[docID] {
		out = append(out, m)
	}
	return out, nil
}

func (p *fakePresence) SetCursor(_ context.Context, docID, participantID string, jsonData []byte, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursors[docID+"/"+participantID] = jsonData
	return nil
}

func (p *fakePresence) GetCursor(_ context.Context, docID, participantID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursors[docID+"/"+participantID], nil
}

type memDoc struct{ title, content string }

type memDocs struct {
	mu   sync.Mutex
	docs map[string]memDoc
}

func (s *memDocs) Load(_ context.Context, docID string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[docID]
	if !ok {
		return "", "", errors.New("document not found")
	}
	return d.title, d.content, nil
}

func (s *memDocs) Save(_ context.Context, docID, title, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docID] = memDoc{title: title, content: content}
	return nil
}

type memGrants struct {
	mu     sync.Mutex
	grants map[string][]access.Grant
	policy map[string]access.LinkAccess
}

func (s *memGrants) ListGrants(_ context.Context, docID string) ([]access.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]access.Grant, len(s.grants[docID]))
	copy(out, s.grants[docID])
	return out, nil
}

func (s *memGrants) Invite(_ context.Context, docID, identifier string, role access.Role, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[docID] = append(s.grants[docID], access.Grant{
		ParticipantID: "p-" + identifier,
		Identifier:    identifier,
		Role:          role,
		GrantedBy:     grantedBy,
	})
	return nil
}

func (s *memGrants) ChangeRole(_ context.Context, docID, participantID string, role access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.grants[docID] {
		if g.ParticipantID == participantID {
			s.grants[docID][i].Role = role
			return nil
		}
	}
	return access.ErrGrantNotFound
}

func (s *memGrants) Remove(_ context.Context, docID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.grants[docID] {
		if g.ParticipantID == participantID {
			s.grants[docID] = append(s.grants[docID][:i], s.grants[docID][i+1:]...)
			return nil
		}
	}
	return access.ErrGrantNotFound
}

func (s *memGrants) LinkAccess(_ context.Context, docID string) (access.LinkAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.policy[docID]; ok {
		return p, nil
	}
	return access.LinkRestricted, nil
}

func (s *memGrants) SetLinkAccess(_ context.Context, docID string, policy access.LinkAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy[docID] = policy
	return nil
}

type testEnv struct {
	srv    *httptest.Server
	hub    *Hub
	docs   *memDocs
	grants *memGrants
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		hub:    NewHub(newFakePresence()),
		docs:   &memDocs{docs: map[string]memDoc{"doc-1": {title: "Notes", content: "<p>hello</p>"}}},
		grants: &memGrants{grants: make(map[string][]access.Grant), policy: make(map[string]access.LinkAccess)},
	}
	env.grants.grants["doc-1"] = []access.Grant{
		{ParticipantID: "alice", Identifier: "alice@example.com", Role: access.RoleOwner},
		{ParticipantID: "bob", Identifier: "bob@example.com", Role: access.RoleEditor},
		{ParticipantID: "carol", Identifier: "carol@example.com", Role: access.RoleViewer},
	}
	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConn(conn, env.hub, q.Get("pid"), q.Get("name"), q.Get("ident"),
			env.docs, env.grants, nil, zerolog.Nop())
		c.Serve(r.Context())
	}))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) dial(t *testing.T, pid, name, ident string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") +
		"/?pid=" + pid + "&name=" + name + "&ident=" + ident
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", pid, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, docID string) event.Envelope {
	t.Helper()
	if err := conn.WriteJSON(event.Envelope{Type: event.TypeJoinDocument, DocID: docID}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	return readType(t, conn, event.TypeDocumentJoined)
}

// readType skips broadcast traffic until an envelope of the wanted type, or
// an error envelope, arrives.
func readType(t *testing.T, conn *websocket.Conn, want string) event.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		var ev event.Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if ev.Type == want || ev.Type == event.TypeError {
			return ev
		}
	}
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	defer conn.SetReadDeadline(time.Time{})
	var ev event.Envelope
	if err := conn.ReadJSON(&ev); err == nil {
		t.Fatalf("unexpected envelope %q", ev.Type)
	}
}

func TestJoinDeliversSnapshotAndRoster(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	joined := join(t, alice, "doc-1")
	if joined.Type != event.TypeDocumentJoined {
		t.Fatalf("join failed: %+v", joined)
	}
	if joined.Title != "Notes" || joined.Content != "<p>hello</p>" {
		t.Fatalf("snapshot %q/%q, want Notes/<p>hello</p>", joined.Title, joined.Content)
	}
	if joined.Role != "owner" {
		t.Fatalf("role %q, want owner", joined.Role)
	}

	bob := env.dial(t, "bob", "Bob", "bob@example.com")
	joined = join(t, bob, "doc-1")
	if len(joined.Participants) != 2 {
		t.Fatalf("roster size %d, want 2", len(joined.Participants))
	}

	// alice sees bob arrive
	ev := readType(t, alice, event.TypeUserJoined)
	if ev.ParticipantID != "bob" || ev.Role != "editor" {
		t.Fatalf("user-joined %+v, want bob/editor", ev)
	}
}

func TestJoinUnknownDocumentRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	if err := alice.WriteJSON(event.Envelope{Type: event.TypeJoinDocument, DocID: "nope"}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	ev := readType(t, alice, event.TypeError)
	if ev.Type != event.TypeError {
		t.Fatalf("got %q, want error", ev.Type)
	}
}

func TestJoinWithoutGrantFollowsLinkPolicy(t *testing.T) {
	env := newTestEnv(t)

	stranger := env.dial(t, "dave", "Dave", "dave@example.com")
	if err := stranger.WriteJSON(event.Envelope{Type: event.TypeJoinDocument, DocID: "doc-1"}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	if ev := readType(t, stranger, event.TypeError); ev.Type != event.TypeError {
		t.Fatalf("restricted doc admitted a stranger: %+v", ev)
	}

	env.grants.SetLinkAccess(context.Background(), "doc-1", access.LinkAnyone)
	stranger2 := env.dial(t, "erin", "Erin", "erin@example.com")
	joined := join(t, stranger2, "doc-1")
	if joined.Type != event.TypeDocumentJoined || joined.Role != "viewer" {
		t.Fatalf("link join %+v, want viewer", joined)
	}
}

func TestDocumentChangeRelaysToOthersOnly(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	join(t, alice, "doc-1")
	bob := env.dial(t, "bob", "Bob", "bob@example.com")
	join(t, bob, "doc-1")
	readType(t, alice, event.TypeUserJoined)

	if err := bob.WriteJSON(event.Envelope{Type: event.TypeDocumentChange, Content: "<p>world</p>"}); err != nil {
		t.Fatalf("send change: %v", err)
	}

	ev := readType(t, alice, event.TypeDocumentUpdated)
	if ev.ParticipantID != "bob" || ev.Content != "<p>world</p>" {
		t.Fatalf("update %+v, want bob's content", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("update missing timestamp")
	}
	// no echo back to the origin
	expectSilence(t, bob)

	_, content, err := env.docs.Load(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content != "<p>world</p>" {
		t.Fatalf("persisted %q, want <p>world</p>", content)
	}
}

func TestViewerCannotEdit(t *testing.T) {
	env := newTestEnv(t)
	carol := env.dial(t, "carol", "Carol", "carol@example.com")
	join(t, carol, "doc-1")

	if err := carol.WriteJSON(event.Envelope{Type: event.TypeDocumentChange, Content: "<p>sneaky</p>"}); err != nil {
		t.Fatalf("send change: %v", err)
	}
	ev := readType(t, carol, event.TypeError)
	if ev.Type != event.TypeError {
		t.Fatalf("got %q, want error", ev.Type)
	}
	_, content, _ := env.docs.Load(context.Background(), "doc-1")
	if content != "<p>hello</p>" {
		t.Fatalf("viewer edit persisted: %q", content)
	}
}

func TestTitleChangeRelays(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	join(t, alice, "doc-1")
	bob := env.dial(t, "bob", "Bob", "bob@example.com")
	join(t, bob, "doc-1")
	readType(t, alice, event.TypeUserJoined)

	if err := alice.WriteJSON(event.Envelope{Type: event.TypeTitleChange, Title: "Renamed"}); err != nil {
		t.Fatalf("send title: %v", err)
	}
	ev := readType(t, bob, event.TypeTitleUpdated)
	if ev.Title != "Renamed" || ev.ParticipantID != "alice" {
		t.Fatalf("title update %+v", ev)
	}
	title, _, _ := env.docs.Load(context.Background(), "doc-1")
	if title != "Renamed" {
		t.Fatalf("persisted title %q, want Renamed", title)
	}
}

func TestCursorAndTypingRelay(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	join(t, alice, "doc-1")
	bob := env.dial(t, "bob", "Bob", "bob@example.com")
	join(t, bob, "doc-1")
	readType(t, alice, event.TypeUserJoined)

	if err := bob.WriteJSON(event.Envelope{
		Type:      event.TypeCursorUpdate,
		Position:  12,
		Selection: &event.Range{Start: 12, End: 20},
	}); err != nil {
		t.Fatalf("send cursor: %v", err)
	}
	ev := readType(t, alice, event.TypeCursorUpdate)
	if ev.ParticipantID != "bob" || ev.Position != 12 || ev.Selection == nil || ev.Selection.End != 20 {
		t.Fatalf("cursor %+v", ev)
	}

	if err := bob.WriteJSON(event.Envelope{Type: event.TypeUserTyping, IsTyping: true}); err != nil {
		t.Fatalf("send typing: %v", err)
	}
	ev = readType(t, alice, event.TypeUserTyping)
	if ev.ParticipantID != "bob" || !ev.IsTyping {
		t.Fatalf("typing %+v", ev)
	}
}

func TestInviteResults(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	join(t, alice, "doc-1")

	if err := alice.WriteJSON(event.Envelope{
		Type:       event.TypeInviteUser,
		Identifier: "dave@example.com",
		Role:       "editor",
	}); err != nil {
		t.Fatalf("send invite: %v", err)
	}
	ev := readType(t, alice, event.TypeInvitationSent)
	if ev.Type != event.TypeInvitationSent || ev.Identifier != "dave@example.com" {
		t.Fatalf("invite result %+v", ev)
	}

	// inviting the same identifier again fails
	if err := alice.WriteJSON(event.Envelope{
		Type:       event.TypeInviteUser,
		Identifier: "dave@example.com",
		Role:       "viewer",
	}); err != nil {
		t.Fatalf("send invite: %v", err)
	}
	ev = readType(t, alice, event.TypeInvitationFailed)
	if ev.Type != event.TypeInvitationFailed {
		t.Fatalf("duplicate invite result %+v", ev)
	}
}

func TestRemoveCollaboratorKicksTarget(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	join(t, alice, "doc-1")
	bob := env.dial(t, "bob", "Bob", "bob@example.com")
	join(t, bob, "doc-1")
	readType(t, alice, event.TypeUserJoined)

	if err := alice.WriteJSON(event.Envelope{
		Type:          event.TypeRemoveCollaborator,
		ParticipantID: "bob",
	}); err != nil {
		t.Fatalf("send removal: %v", err)
	}

	ev := readType(t, bob, event.TypeCollaboratorRemoved)
	if ev.ParticipantID != "bob" {
		t.Fatalf("removal broadcast %+v", ev)
	}
	// bob's connection is closed by the kick
	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var next event.Envelope
		if err := bob.ReadJSON(&next); err != nil {
			break
		}
	}

	grants, _ := env.grants.ListGrants(context.Background(), "doc-1")
	for _, g := range grants {
		if g.ParticipantID == "bob" {
			t.Fatal("bob still holds a grant")
		}
	}
}

func TestPermissionChangeIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	bob := env.dial(t, "bob", "Bob", "bob@example.com")
	join(t, bob, "doc-1")

	if err := bob.WriteJSON(event.Envelope{
		Type:          event.TypeChangePermission,
		ParticipantID: "carol",
		Role:          "editor",
	}); err != nil {
		t.Fatalf("send change: %v", err)
	}
	ev := readType(t, bob, event.TypeError)
	if ev.Type != event.TypeError {
		t.Fatalf("got %q, want error", ev.Type)
	}

	alice := env.dial(t, "alice", "Alice", "alice@example.com")
	join(t, alice, "doc-1")
	readType(t, bob, event.TypeUserJoined)
	if err := alice.WriteJSON(event.Envelope{
		Type:          event.TypeChangePermission,
		ParticipantID: "carol",
		Role:          "editor",
	}); err != nil {
		t.Fatalf("send change: %v", err)
	}
	ev = readType(t, bob, event.TypePermissionChanged)
	if ev.ParticipantID != "carol" || ev.Role != "editor" {
		t.Fatalf("permission broadcast %+v", ev)
	}
}

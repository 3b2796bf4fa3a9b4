package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabsync/backend/internal/access"
	"collabsync/backend/internal/docsync"
	"collabsync/backend/internal/event"
)

const (
	presenceTTL = 600 * time.Second
	cursorTTL   = 30 * time.Second
)

// Conn is one websocket connection to the collaboration service. The identity
// fields come from the authenticated handshake; the room is picked by the
// join-document request. For the sharing requests (change-permission,
// remove-collaborator) the envelope's participantId names the TARGET; the
// acting participant is always the connection itself.
type Conn struct {
	ws  *websocket.Conn
	hub *Hub

	participantID string
	displayName   string
	identifier    string

	docs       docsync.Store
	grants     access.Store
	dispatcher *Dispatcher
	log        zerolog.Logger

	// room state, touched only by the read loop
	docID  string
	role   string
	title  string
	joined bool

	send      chan event.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, hub *Hub, participantID, displayName, identifier string,
	docs docsync.Store, grants access.Store, dispatcher *Dispatcher, log zerolog.Logger) *Conn {
	return &Conn{
		ws:            ws,
		hub:           hub,
		participantID: participantID,
		displayName:   displayName,
		identifier:    identifier,
		docs:          docs,
		grants:        grants,
		dispatcher:    dispatcher,
		log: log.With().
			Str("component", "ws-conn").
			Str("participantId", participantID).
			Logger(),
		send: make(chan event.Envelope, 64),
		done: make(chan struct{}),
	}
}

// Enqueue offers an envelope to the outbound queue. A slow consumer drops;
// content convergence rides on later snapshots.
func (c *Conn) Enqueue(ev event.Envelope) {
	select {
	case c.send <- ev:
	default:
		c.log.Debug().Str("type", ev.Type).Msg("send queue full, dropping")
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

// Serve pumps the connection until it closes, then tears down room state.
func (c *Conn) Serve(ctx context.Context) {
	go c.writeLoop()
	c.readLoop(ctx)
	c.leave(ctx)
	c.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var ev event.Envelope
		if err := c.ws.ReadJSON(&ev); err != nil {
			return
		}
		switch ev.Type {
		case event.TypeJoinDocument:
			c.handleJoin(ctx, ev)
		case event.TypeDocumentChange:
			c.handleDocumentChange(ctx, ev)
		case event.TypeTitleChange:
			c.handleTitleChange(ctx, ev)
		case event.TypeCursorUpdate:
			c.handleCursorUpdate(ctx, ev)
		case event.TypeUserTyping:
			if c.joined {
				c.hub.BroadcastToOthers(c.docID, c, event.Envelope{
					Type:          event.TypeUserTyping,
					DocID:         c.docID,
					ParticipantID: c.participantID,
					IsTyping:      ev.IsTyping,
				})
			}
		case event.TypeInviteUser:
			c.handleInvite(ctx, ev)
		case event.TypeChangePermission:
			c.handleChangePermission(ctx, ev)
		case event.TypeRemoveCollaborator:
			c.handleRemoveCollaborator(ctx, ev)
		default:
			c.log.Debug().Str("type", ev.Type).Msg("ignoring unknown event")
		}
	}
}

func (c *Conn) fail(msg string) {
	c.Enqueue(event.Envelope{Type: event.TypeError, DocID: c.docID, Message: msg})
}

func (c *Conn) handleJoin(ctx context.Context, ev event.Envelope) {
	if ev.DocID == "" {
		c.fail("missing docId")
		return
	}
	if c.joined && c.docID != ev.DocID {
		// switching rooms on one connection leaves the old one first
		c.leave(ctx)
	}
	title, content, err := c.docs.Load(ctx, ev.DocID)
	if err != nil {
		c.log.Warn().Err(err).Str("docId", ev.DocID).Msg("join rejected")
		c.fail("document not found")
		return
	}
	role, err := c.resolveRole(ctx, ev.DocID)
	if err != nil {
		if errors.Is(err, access.ErrGrantNotFound) {
			c.fail("access denied")
		} else {
			c.log.Error().Err(err).Str("docId", ev.DocID).Msg("role lookup failed")
			c.fail("join failed")
		}
		return
	}

	c.docID = ev.DocID
	c.role = string(role)
	c.title = title
	c.joined = true

	c.hub.Join(c.docID, c)
	if err := c.hub.presence.AddMember(ctx, c.docID, c.participantID, c.displayName, c.role, presenceTTL); err != nil {
		c.log.Warn().Err(err).Msg("presence add failed")
	}
	c.Enqueue(event.Envelope{
		Type:         event.TypeDocumentJoined,
		DocID:        c.docID,
		Title:        title,
		Content:      content,
		Role:         c.role,
		Participants: c.roster(ctx),
	})
	c.hub.BroadcastToOthers(c.docID, c, event.Envelope{
		Type:          event.TypeUserJoined,
		DocID:         c.docID,
		ParticipantID: c.participantID,
		DisplayName:   c.displayName,
		Role:          c.role,
	})
}

// resolveRole checks the grant roster first and falls back to the link
// policy. ErrGrantNotFound means the policy is restricted and the visitor
// holds no grant.
func (c *Conn) resolveRole(ctx context.Context, docID string) (access.Role, error) {
	if c.grants == nil {
		return access.RoleEditor, nil
	}
	grants, err := c.grants.ListGrants(ctx, docID)
	if err != nil {
		return "", err
	}
	for _, g := range grants {
		if g.ParticipantID == c.participantID {
			return g.Role, nil
		}
	}
	policy, err := c.grants.LinkAccess(ctx, docID)
	if err != nil {
		return "", err
	}
	switch policy {
	case access.LinkAnyone, access.LinkPublic:
		return access.RoleViewer, nil
	default:
		return "", access.ErrGrantNotFound
	}
}

func (c *Conn) roster(ctx context.Context) []event.Participant {
	members, err := c.hub.presence.GetAliveMembers(ctx, c.docID)
	if err != nil {
		c.log.Warn().Err(err).Msg("presence list failed")
		return nil
	}
	out := make([]event.Participant, 0, len(members))
	for _, m := range members {
		out = append(out, event.Participant{
			ParticipantID: m.ParticipantID,
			DisplayName:   m.DisplayName,
			Role:          m.Role,
		})
	}
	return out
}

func (c *Conn) canEdit() bool {
	return c.joined && access.Role(c.role).AtLeast(access.RoleEditor)
}

func (c *Conn) handleDocumentChange(ctx context.Context, ev event.Envelope) {
	if !c.canEdit() {
		c.fail("not permitted to edit")
		return
	}
	// heartbeat ride-along: an actively editing member never expires
	_ = c.hub.presence.AddMember(ctx, c.docID, c.participantID, c.displayName, c.role, presenceTTL)
	if err := c.docs.Save(ctx, c.docID, c.title, ev.Content); err != nil {
		c.log.Warn().Err(err).Msg("snapshot save failed")
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	c.hub.BroadcastToOthers(c.docID, c, event.Envelope{
		Type:          event.TypeDocumentUpdated,
		DocID:         c.docID,
		ParticipantID: c.participantID,
		Content:       ev.Content,
		Timestamp:     ts,
	})
	if c.dispatcher != nil {
		c.dispatcher.Enqueue(ChangeAudit{
			EventType:     "DOCUMENT_CHANGE",
			DocID:         c.docID,
			ParticipantID: c.participantID,
			Content:       ev.Content,
			Timestamp:     ts,
		})
	}
}

func (c *Conn) handleTitleChange(ctx context.Context, ev event.Envelope) {
	if !c.canEdit() {
		c.fail("not permitted to edit")
		return
	}
	c.title = ev.Title
	_, content, err := c.docs.Load(ctx, c.docID)
	if err == nil {
		err = c.docs.Save(ctx, c.docID, ev.Title, content)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("title save failed")
	}
	c.hub.BroadcastToOthers(c.docID, c, event.Envelope{
		Type:          event.TypeTitleUpdated,
		DocID:         c.docID,
		ParticipantID: c.participantID,
		Title:         ev.Title,
	})
}

func (c *Conn) handleCursorUpdate(ctx context.Context, ev event.Envelope) {
	if !c.joined {
		return
	}
	out := event.Envelope{
		Type:          event.TypeCursorUpdate,
		DocID:         c.docID,
		ParticipantID: c.participantID,
		Position:      ev.Position,
		Selection:     ev.Selection,
	}
	if b, err := json.Marshal(out); err == nil {
		_ = c.hub.presence.SetCursor(ctx, c.docID, c.participantID, b, cursorTTL)
	}
	c.hub.BroadcastToOthers(c.docID, c, out)
}

func (c *Conn) accessManager() *access.Manager {
	return access.NewManager(c.grants, c.docID, c.participantID, c.identifier)
}

func (c *Conn) handleInvite(ctx context.Context, ev event.Envelope) {
	if !c.joined || c.grants == nil {
		c.fail("not in a document")
		return
	}
	mgr := c.accessManager()
	if err := mgr.Refresh(ctx); err != nil {
		c.log.Error().Err(err).Msg("grant fetch failed")
		c.fail("invite failed")
		return
	}
	if err := mgr.Invite(ctx, ev.Identifier, access.Role(ev.Role)); err != nil {
		c.Enqueue(event.Envelope{
			Type:       event.TypeInvitationFailed,
			DocID:      c.docID,
			Identifier: ev.Identifier,
			Message:    err.Error(),
		})
		return
	}
	c.Enqueue(event.Envelope{
		Type:       event.TypeInvitationSent,
		DocID:      c.docID,
		Identifier: ev.Identifier,
		Role:       ev.Role,
	})
}

func (c *Conn) handleChangePermission(ctx context.Context, ev event.Envelope) {
	if !c.joined || c.grants == nil {
		c.fail("not in a document")
		return
	}
	mgr := c.accessManager()
	if err := mgr.Refresh(ctx); err != nil {
		c.log.Error().Err(err).Msg("grant fetch failed")
		c.fail("permission change failed")
		return
	}
	target := ev.ParticipantID
	if err := mgr.ChangeRole(ctx, target, access.Role(ev.Role)); err != nil {
		c.fail(err.Error())
		return
	}
	_ = c.hub.presence.SetRole(ctx, c.docID, target, ev.Role)
	c.hub.Broadcast(c.docID, event.Envelope{
		Type:          event.TypePermissionChanged,
		DocID:         c.docID,
		ParticipantID: target,
		Role:          ev.Role,
	})
}

func (c *Conn) handleRemoveCollaborator(ctx context.Context, ev event.Envelope) {
	if !c.joined || c.grants == nil {
		c.fail("not in a document")
		return
	}
	mgr := c.accessManager()
	if err := mgr.Refresh(ctx); err != nil {
		c.log.Error().Err(err).Msg("grant fetch failed")
		c.fail("removal failed")
		return
	}
	target := ev.ParticipantID
	if err := mgr.Remove(ctx, target); err != nil {
		c.fail(err.Error())
		return
	}
	_ = c.hub.presence.RemoveMember(ctx, c.docID, target)
	c.hub.Broadcast(c.docID, event.Envelope{
		Type:          event.TypeCollaboratorRemoved,
		DocID:         c.docID,
		ParticipantID: target,
	})
	c.hub.Kick(c.docID, target)
}

func (c *Conn) leave(ctx context.Context) {
	if !c.joined {
		return
	}
	c.hub.Leave(c.docID, c)
	if err := c.hub.presence.RemoveMember(ctx, c.docID, c.participantID); err != nil {
		c.log.Warn().Err(err).Msg("presence remove failed")
	}
	c.hub.Broadcast(c.docID, event.Envelope{
		Type:          event.TypeUserLeft,
		DocID:         c.docID,
		ParticipantID: c.participantID,
	})
	c.joined = false
}

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabsync/backend/internal/event"
)

// ErrAuthenticationFailed marks a rejected handshake. Unlike transient
// transport failures it is terminal: the session stays Disconnected and does
// not retry with the same credentials.
var ErrAuthenticationFailed = errors.New("authentication failed")

var ErrNotConnected = errors.New("session is not connected")

// DefaultDialer mirrors the gorilla defaults with compression enabled.
var DefaultDialer = &websocket.Dialer{
	Proxy:             http.ProxyFromEnvironment,
	HandshakeTimeout:  10 * time.Second,
	EnableCompression: true,
}

type Config struct {
	// URL of the collaboration service websocket endpoint.
	URL string
	// Token is the opaque identity token from the identity provider, carried
	// as a query parameter because browser websocket handshakes cannot set an
	// Authorization header.
	Token         string
	DocID         string
	ParticipantID string
	DisplayName   string

	// JoinTimeout bounds the wait for the join confirmation.
	JoinTimeout time.Duration
	// ReconnectInterval is the pause between reconnection attempts after a
	// transport failure.
	ReconnectInterval time.Duration
	// SendQueueSize is the outbound buffer; full queue drops (ephemeral
	// signals are fire-and-forget).
	SendQueueSize int

	Logger zerolog.Logger
}

// Handlers fan inbound events out to the interested components. Each handler
// is independent; a nil handler means the event class is ignored.
type Handlers struct {
	OnStateChange         func(State)
	OnRoster              func([]event.Participant)
	OnDocumentUpdated     func(event.Envelope)
	OnTitleUpdated        func(event.Envelope)
	OnCursorUpdate        func(event.Envelope)
	OnUserTyping          func(event.Envelope)
	OnUserJoined          func(event.Envelope)
	OnUserLeft            func(event.Envelope)
	OnPermissionChanged   func(event.Envelope)
	OnCollaboratorRemoved func(event.Envelope)
	OnInvitationResult    func(event.Envelope)
	OnServerError         func(event.Envelope)
}

// Session owns one persistent duplex channel to the collaboration service:
// authenticated handshake, room join, automatic reconnection. Explicitly
// constructed and closed by the document view that owns it; there is no
// ambient global connection.
type Session struct {
	cfg      Config
	dialer   *websocket.Dialer
	handlers Handlers
	log      zerolog.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	closing bool

	send        chan event.Envelope
	closeCh     chan struct{}
	reconnectCh chan struct{}
}

func New(cfg Config, handlers Handlers) *Session {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 2 * time.Second
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 32
	}
	return &Session{
		cfg:      cfg,
		dialer:   DefaultDialer,
		handlers: handlers,
		log: cfg.Logger.With().
			Str("component", "session").
			Str("docId", cfg.DocID).
			Logger(),
		state:       StateDisconnected,
		send:        make(chan event.Envelope, cfg.SendQueueSize),
		closeCh:     make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transitionTo(next State) error {
	s.mu.Lock()
	newState, err := s.state.TransitionTo(next)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = newState
	s.mu.Unlock()
	s.log.Debug().Stringer("state", newState).Msg("session state changed")
	if s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(newState)
	}
	return nil
}

func (s *Session) mustTransitionTo(next State) {
	if err := s.transitionTo(next); err != nil {
		panic(fmt.Sprintf("BUG: %v", err))
	}
}

// Connect dials the service, performs the authenticated handshake and joins
// the document's room. On success the session is Connected and delivers the
// current roster through OnRoster. The reconnection loop only arms after a
// successful initial connect; how to retry a failed first connect is the
// caller's decision.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.transitionTo(StateConnecting); err != nil {
		return err
	}

	conn, err := s.dial(ctx)
	if err != nil {
		s.mustTransitionTo(StateDisconnected)
		return err
	}
	roster, err := s.join(conn)
	if err != nil {
		conn.Close()
		s.mustTransitionTo(StateDisconnected)
		return fmt.Errorf("join document %s: %w", s.cfg.DocID, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.mustTransitionTo(StateConnected)
	if s.handlers.OnRoster != nil {
		s.handlers.OnRoster(roster)
	}

	go s.writeLoop()
	go s.readLoop(conn)
	go s.reconnectLoop()
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	u := s.cfg.URL
	if s.cfg.Token != "" {
		sep := "?"
		if parsed, err := url.Parse(u); err == nil && parsed.RawQuery != "" {
			sep = "&"
		}
		u += sep + "token=" + url.QueryEscape(s.cfg.Token)
	}
	conn, resp, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with status %d", ErrAuthenticationFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	return conn, nil
}

// join issues the room join request and waits for its confirmation carrying
// the current presence roster.
func (s *Session) join(conn *websocket.Conn) ([]event.Participant, error) {
	req := event.Envelope{
		Type:          event.TypeJoinDocument,
		DocID:         s.cfg.DocID,
		ParticipantID: s.cfg.ParticipantID,
		DisplayName:   s.cfg.DisplayName,
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.cfg.JoinTimeout)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		var ev event.Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			return nil, err
		}
		switch ev.Type {
		case event.TypeDocumentJoined:
			return ev.Participants, nil
		case event.TypeError:
			return nil, fmt.Errorf("service rejected join: %s", ev.Message)
		default:
			// broadcast traffic racing the confirmation; not ours yet
		}
	}
}

// Send enqueues an envelope without waiting for delivery. DocID and the local
// participant id are filled in when absent. A full queue or a down connection
// drops the message; content convergence is carried by later snapshots and
// ephemeral signals by design tolerate loss.
func (s *Session) Send(ev event.Envelope) {
	if ev.DocID == "" {
		ev.DocID = s.cfg.DocID
	}
	if ev.ParticipantID == "" {
		ev.ParticipantID = s.cfg.ParticipantID
	}
	select {
	case s.send <- ev:
	default:
		s.log.Debug().Str("type", ev.Type).Msg("send queue full, dropping")
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closeCh:
			return
		case ev := <-s.send:
			s.mu.Lock()
			conn := s.conn
			state := s.state
			s.mu.Unlock()
			if conn == nil || state != StateConnected {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug().Err(err).Str("type", ev.Type).Msg("write failed")
			}
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var ev event.Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.log.Warn().Err(err).Msg("connection lost")
			if terr := s.transitionTo(StateReconnecting); terr != nil {
				return
			}
			select {
			case s.reconnectCh <- struct{}{}:
			default:
			}
			return
		}
		s.dispatch(ev)
	}
}

// dispatch fans one inbound event out to its handler. Handlers run on the
// read loop; they are expected to hand off anything slow.
func (s *Session) dispatch(ev event.Envelope) {
	switch ev.Type {
	case event.TypeDocumentJoined:
		if s.handlers.OnRoster != nil {
			s.handlers.OnRoster(ev.Participants)
		}
	case event.TypeDocumentUpdated:
		if s.handlers.OnDocumentUpdated != nil {
			s.handlers.OnDocumentUpdated(ev)
		}
	case event.TypeTitleUpdated:
		if s.handlers.OnTitleUpdated != nil {
			s.handlers.OnTitleUpdated(ev)
		}
	case event.TypeCursorUpdate:
		if s.handlers.OnCursorUpdate != nil {
			s.handlers.OnCursorUpdate(ev)
		}
	case event.TypeUserTyping:
		if s.handlers.OnUserTyping != nil {
			s.handlers.OnUserTyping(ev)
		}
	case event.TypeUserJoined:
		if s.handlers.OnUserJoined != nil {
			s.handlers.OnUserJoined(ev)
		}
	case event.TypeUserLeft:
		if s.handlers.OnUserLeft != nil {
			s.handlers.OnUserLeft(ev)
		}
	case event.TypePermissionChanged:
		if s.handlers.OnPermissionChanged != nil {
			s.handlers.OnPermissionChanged(ev)
		}
	case event.TypeCollaboratorRemoved:
		if s.handlers.OnCollaboratorRemoved != nil {
			s.handlers.OnCollaboratorRemoved(ev)
		}
	case event.TypeInvitationSent, event.TypeInvitationFailed:
		if s.handlers.OnInvitationResult != nil {
			s.handlers.OnInvitationResult(ev)
		}
	case event.TypeError:
		if s.handlers.OnServerError != nil {
			s.handlers.OnServerError(ev)
		}
	default:
		s.log.Debug().Str("type", ev.Type).Msg("ignoring unknown event")
	}
}

// reconnectLoop re-dials after transport failures, re-issues the join request
// and re-synchronizes presence. An authentication rejection during reconnect
// ends the session; stale credentials will not get better by retrying.
func (s *Session) reconnectLoop() {
	for {
		select {
		case <-s.closeCh:
			return
		case <-s.reconnectCh:
		}
		for {
			select {
			case <-s.closeCh:
				return
			case <-time.After(s.cfg.ReconnectInterval):
			}
			if s.State() != StateReconnecting {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JoinTimeout)
			conn, err := s.dial(ctx)
			cancel()
			if err != nil {
				if errors.Is(err, ErrAuthenticationFailed) {
					s.log.Error().Err(err).Msg("reconnect rejected, giving up")
					s.Disconnect()
					return
				}
				s.log.Debug().Err(err).Msg("reconnect attempt failed")
				continue
			}
			roster, err := s.join(conn)
			if err != nil {
				conn.Close()
				s.log.Debug().Err(err).Msg("rejoin failed")
				continue
			}
			s.mu.Lock()
			if s.closing {
				s.mu.Unlock()
				conn.Close()
				return
			}
			s.conn = conn
			s.mu.Unlock()
			if err := s.transitionTo(StateConnected); err != nil {
				conn.Close()
				return
			}
			if s.handlers.OnRoster != nil {
				s.handlers.OnRoster(roster)
			}
			go s.readLoop(conn)
			break
		}
	}
}

// Disconnect is terminal: it cancels any pending reconnection and closes the
// channel. Ephemeral state clearing (presence, cursors, typing) happens in
// the components observing the state change; an in-flight persistence flush
// is deliberately not cancelled.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	close(s.closeCh)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	s.mu.Lock()
	prev := s.state
	s.mu.Unlock()
	if prev != StateDisconnected {
		s.mustTransitionTo(StateDisconnected)
	}
}

package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"collabsync/backend/internal/access"
	"collabsync/backend/internal/comments"
	"collabsync/backend/internal/docsync"
	"collabsync/backend/internal/event"
	"collabsync/backend/internal/presence"
	"collabsync/backend/internal/session"
	"collabsync/backend/internal/signal"
)

type Options struct {
	Session session.Config

	Store        docsync.Store
	CommentStore comments.Store
	AccessStore  access.Store

	// ActorIdentifier is the email the local participant signed in with,
	// needed for self-invite rejection.
	ActorIdentifier string

	CursorDebounce time.Duration
	TitleDebounce  time.Duration
	TypingSilence  time.Duration
	FlushInterval  time.Duration

	Logger zerolog.Logger
}

func (o *Options) withDefaults() {
	if o.CursorDebounce <= 0 {
		o.CursorDebounce = 50 * time.Millisecond
	}
	if o.TitleDebounce <= 0 {
		o.TitleDebounce = 400 * time.Millisecond
	}
	if o.TypingSilence <= 0 {
		o.TypingSilence = 1500 * time.Millisecond
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 15 * time.Second
	}
}

// Editor is one open collaborative document: the session, the authoritative
// snapshot and every synchronization component wired together. The owning
// view constructs it, connects it and closes it; nothing here is global.
type Editor struct {
	doc      *docsync.Document
	sess     *session.Session
	registry *presence.Registry
	content  *docsync.Broadcaster
	title    *docsync.TitleSync
	cursors  *signal.CursorRelay
	typing   *signal.TypingMonitor
	bridge   *docsync.Bridge
	comments *comments.Manager
	access   *access.Manager
	log      zerolog.Logger
}

// Open loads the document from durable storage and wires the components.
// The session is not connected yet; call Connect.
func Open(ctx context.Context, opts Options) (*Editor, error) {
	opts.withDefaults()
	docID := opts.Session.DocID
	self := opts.Session.ParticipantID

	title, content, err := opts.Store.Load(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}

	e := &Editor{
		doc:      docsync.NewDocument(docID, title, content),
		registry: presence.NewRegistry(),
		log:      opts.Logger.With().Str("docId", docID).Logger(),
	}
	guard := docsync.NewRemoteApplyGuard()

	e.sess = session.New(opts.Session, session.Handlers{
		OnStateChange:       e.onStateChange,
		OnRoster:            e.registry.ReplaceAll,
		OnDocumentUpdated:   func(ev event.Envelope) { e.content.ApplyRemote(ev) },
		OnTitleUpdated:      func(ev event.Envelope) { e.title.ApplyRemote(ev) },
		OnCursorUpdate:      func(ev event.Envelope) { e.cursors.Store(ev) },
		OnUserTyping:        e.onUserTyping,
		OnUserJoined:        e.onUserJoined,
		OnUserLeft:          e.onUserLeft,
		OnPermissionChanged: func(ev event.Envelope) { e.registry.SetRole(ev.ParticipantID, ev.Role) },
	})

	e.content = docsync.NewBroadcaster(self, e.doc, guard, e.sess.Send, opts.Logger)
	e.title = docsync.NewTitleSync(self, e.doc, guard, opts.TitleDebounce, e.sess.Send)
	e.cursors = signal.NewCursorRelay(self, opts.CursorDebounce, func(pos int, sel *event.Range) {
		e.sess.Send(event.Envelope{Type: event.TypeCursorUpdate, Position: pos, Selection: sel})
	})
	e.typing = signal.NewTypingMonitor(opts.TypingSilence, func(isTyping bool) {
		e.sess.Send(event.Envelope{Type: event.TypeUserTyping, IsTyping: isTyping})
	})
	e.bridge = docsync.NewBridge(e.doc, opts.Store, opts.FlushInterval, opts.Logger)
	e.comments = comments.NewManager(opts.CommentStore, docID, self)
	e.access = access.NewManager(opts.AccessStore, docID, self, opts.ActorIdentifier)
	return e, nil
}

// Connect joins the document room and starts the persistence interval.
func (e *Editor) Connect(ctx context.Context) error {
	if err := e.sess.Connect(ctx); err != nil {
		return err
	}
	// the bridge outlives the connection on purpose: a flush still completes
	// after a disconnect
	go e.bridge.Run(context.Background())
	if err := e.comments.Refresh(ctx); err != nil {
		e.log.Warn().Err(err).Msg("initial comment fetch failed")
	}
	if err := e.access.Refresh(ctx); err != nil {
		e.log.Warn().Err(err).Msg("initial collaborator fetch failed")
	}
	return nil
}

func (e *Editor) onStateChange(st session.State) {
	if st == session.StateDisconnected {
		e.registry.Reset()
		e.cursors.Reset()
		e.typing.Stop()
	}
}

func (e *Editor) onUserJoined(ev event.Envelope) {
	e.registry.Upsert(presence.Participant{
		ParticipantID: ev.ParticipantID,
		DisplayName:   ev.DisplayName,
		Role:          ev.Role,
	})
}

func (e *Editor) onUserLeft(ev event.Envelope) {
	e.registry.Remove(ev.ParticipantID)
	e.cursors.Drop(ev.ParticipantID)
}

func (e *Editor) onUserTyping(ev event.Envelope) {
	status := presence.StatusActive
	if ev.IsTyping {
		status = presence.StatusTyping
	}
	e.registry.SetStatus(ev.ParticipantID, status)
}

// UpdateContent captures a content mutation from the editing surface. The
// keystroke feeds the typing debouncer; the snapshot goes through the change
// broadcaster and marks the document dirty.
func (e *Editor) UpdateContent(content string) {
	e.typing.Keystroke()
	e.content.LocalEdit(content)
}

func (e *Editor) UpdateTitle(title string) {
	e.title.LocalEdit(title)
}

func (e *Editor) MoveCursor(position int, selection *event.Range) {
	e.cursors.Move(position, selection)
}

// Save is the manual flush trigger.
func (e *Editor) Save(ctx context.Context) error {
	return e.bridge.Flush(ctx)
}

func (e *Editor) Document() *docsync.Document { return e.doc }

func (e *Editor) Roster() []presence.Participant { return e.registry.List() }

func (e *Editor) Cursors() map[string]signal.CursorSignal { return e.cursors.Snapshot() }

func (e *Editor) State() session.State { return e.sess.State() }

func (e *Editor) Comments() *comments.Manager { return e.comments }

func (e *Editor) Access() *access.Manager { return e.access }

// Close disconnects and stops the timers. A dirty document gets one final
// flush; failure is reported but the in-memory snapshot has already served
// its purpose.
func (e *Editor) Close(ctx context.Context) error {
	e.sess.Disconnect()
	e.title.Stop()
	e.bridge.Stop()
	if e.doc.Dirty() {
		if err := e.bridge.Flush(ctx); err != nil {
			return fmt.Errorf("final flush: %w", err)
		}
	}
	return nil
}

package docsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store is the durable document store the bridge flushes into.
type Store interface {
	Load(ctx context.Context, docID string) (title, content string, err error)
	Save(ctx context.Context, docID, title, content string) error
}

// Bridge tracks the dirty flag over the in-memory document and flushes it to
// durable storage on a fixed interval or on demand. A failed flush leaves the
// flag set so the next interval retries; the in-memory snapshot stays the
// source of truth, so nothing is lost. Flushing never blocks local input, and
// an in-flight flush is not cancelled by disconnecting the session.
type Bridge struct {
	doc      *Document
	store    Store
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	lastErr error

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewBridge(doc *Document, store Store, interval time.Duration, log zerolog.Logger) *Bridge {
	return &Bridge{
		doc:      doc,
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "bridge").Str("docId", doc.ID()).Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the interval trigger until Stop or ctx cancellation. The ticker
// flushes only when the document is dirty.
func (b *Bridge) Run(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !b.doc.Dirty() {
				continue
			}
			if err := b.Flush(ctx); err != nil {
				b.log.Warn().Err(err).Msg("interval flush failed, will retry")
			}
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Flush is the manual trigger. The snapshot is captured under the document
// lock but the save itself runs without it, so editing continues while the
// write is in flight. Edits landing mid-flush keep the document dirty.
func (b *Bridge) Flush(ctx context.Context) error {
	title, content, version := b.doc.snapshot()
	err := b.store.Save(ctx, b.doc.ID(), title, content)

	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()

	if err != nil {
		return err
	}
	b.doc.markSaved(version, time.Now())
	return nil
}

// LastError reports the outcome of the most recent flush attempt. Surfaced to
// the UI without interrupting editing.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Stop ends the interval loop. It does not cancel an in-flight flush, which
// completes or fails on its own.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// Done is closed when the interval loop has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

package docsync

import (
	"sync"
	"time"
)

// Document is the authoritative in-memory snapshot of one open document.
// Exactly one per open document per client. Local edits and accepted remote
// changes mutate it; the Bridge flushes it to durable storage.
type Document struct {
	mu          sync.Mutex
	id          string
	title       string
	content     string
	dirty       bool
	version     uint64
	lastSavedAt time.Time
}

func NewDocument(id, title, content string) *Document {
	return &Document{id: id, title: title, content: content}
}

func (d *Document) ID() string {
	return d.id
}

func (d *Document) Content() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *Document) LastSavedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSavedAt
}

// SetContent replaces the content and marks the document dirty. Applying a
// remote change also goes through here: the locally held snapshot still has
// to reach durable storage.
func (d *Document) SetContent(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.content == content {
		return
	}
	d.content = content
	d.dirty = true
	d.version++
}

func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.title == title {
		return
	}
	d.title = title
	d.dirty = true
	d.version++
}

// snapshot captures title, content and the version to validate a flush
// against; edits landing during the flush keep the document dirty.
func (d *Document) snapshot() (title, content string, version uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title, d.content, d.version
}

// markSaved clears the dirty flag only if nothing changed since the snapshot
// that was flushed.
func (d *Document) markSaved(version uint64, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSavedAt = at
	if d.version == version {
		d.dirty = false
	}
}

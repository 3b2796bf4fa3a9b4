package signal

import (
	"sync"
	"time"
)

// TypingMonitor turns raw keystroke activity into discrete start/stop typing
// signals. The first keystroke of a burst emits started; a silence timer
// restarted on every keystroke emits stopped once when it expires. A burst of
// any length produces exactly one of each.
type TypingMonitor struct {
	mu      sync.Mutex
	silence time.Duration
	emit    func(isTyping bool)
	timer   *time.Timer
	typing  bool
	stopped bool
}

func NewTypingMonitor(silence time.Duration, emit func(isTyping bool)) *TypingMonitor {
	return &TypingMonitor{silence: silence, emit: emit}
}

func (m *TypingMonitor) Keystroke() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	started := false
	if !m.typing {
		m.typing = true
		started = true
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.silence, m.expire)
	} else {
		m.timer.Reset(m.silence)
	}
	m.mu.Unlock()
	if started {
		m.emit(true)
	}
}

func (m *TypingMonitor) expire() {
	m.mu.Lock()
	if !m.typing || m.stopped {
		m.mu.Unlock()
		return
	}
	m.typing = false
	m.timer = nil
	m.mu.Unlock()
	m.emit(false)
}

func (m *TypingMonitor) Typing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}

// Stop cancels the silence timer without emitting. Used on disconnect, where
// ephemeral state is dropped rather than signalled.
func (m *TypingMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.typing = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

package docsync

import "sync"

// RemoteApplyGuard is a non-reentrant lock held while an incoming remote
// snapshot is applied to the live document. Edit-capture paths check Held to
// avoid re-broadcasting the act of applying a remote change as if it were a
// new local edit. Content and title application share one guard so every
// remote-applied channel follows the same discipline.
type RemoteApplyGuard struct {
	mu   sync.Mutex
	held bool
}

func NewRemoteApplyGuard() *RemoteApplyGuard {
	return &RemoteApplyGuard{}
}

// Acquire takes the guard, reporting false if it is already held. It never
// blocks; remote application is not allowed to nest.
func (g *RemoteApplyGuard) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	return true
}

func (g *RemoteApplyGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}

func (g *RemoteApplyGuard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

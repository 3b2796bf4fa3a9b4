package ws

import (
	"context"
	"errors"
)

var ErrSemaphoreNotHeld = errors.New("semaphore released without being held")

// Semaphore bounds concurrent sends to the audit stream.
type Semaphore struct {
	ch chan struct{}
}

func NewSemaphore(limit int) *Semaphore {
	if limit <= 0 {
		limit = 100
	}
	return &Semaphore{ch: make(chan struct{}, limit)}
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Semaphore) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotHeld
	}
}

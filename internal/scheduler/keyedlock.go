package scheduler

import (
	"context"
	"sync"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
)

// targetLock ensures that only one tick per target is running at any given
// time, across restarts of the target's job and manual checks.
type targetLock struct {
	mu    sync.Mutex
	slots map[domain.TargetID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newTargetLock() *targetLock {
	return &targetLock{slots: make(map[domain.TargetID]*slot)}
}

// Lock waits for the target's slot or for ctx to end.
func (l *targetLock) Lock(ctx context.Context, id domain.TargetID) error {
	l.mu.Lock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(id, s)
		return ctx.Err()
	}
}

func (l *targetLock) Unlock(id domain.TargetID) {
	l.mu.Lock()
	s, ok := l.slots[id]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-s.ch
	l.release(id, s)
}

// release drops one reference and forgets the slot when nobody holds or
// waits on it.
func (l *targetLock) release(id domain.TargetID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker. A zero wait timeout waits until ctx is done.
type Local struct {
	wait time.Duration

	mu   sync.Mutex
	keys map[string]*slot
}

type slot struct {
	held chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, keys: make(map[string]*slot)}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s.held <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.held
				l.releaseSlot(key, s)
			})
		}, nil
	case <-timeout:
		l.releaseSlot(key, s)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.releaseSlot(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.keys[key]
	if !ok {
		s = &slot{held: make(chan struct{}, 1)}
		l.keys[key] = s
	}
	s.refs++
	return s
}

// releaseSlot drops the slot once nobody holds or waits on it.
func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.keys, key)
	}
}

// size reports how many keys are tracked.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Package lock serializes mutating actions on the same workload.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBusy is returned when the lock could not be taken before the wait
// timeout.
var ErrBusy = errors.New("another operation is running on this workload")

type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Key builds the lock key of a workload.
func Key(projectID, workloadID string) string {
	return projectID + "/" + workloadID
}

// Memory locks within one process. A key is kept only while a holder or a
// waiter references it.
type Memory struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemory(timeout time.Duration) *Memory {
	return &Memory{slots: make(map[string]*slot), timeout: timeout}
}

func (m *Memory) hold(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Memory) drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(m.slots, key)
	}
}

func (m *Memory) Acquire(ctx context.Context, key string) (Lease, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	s := m.hold(key)
	select {
	case s.ch <- struct{}{}:
		return &memoryLease{m: m, key: key, ch: s.ch}, nil
	case <-ctx.Done():
		m.drop(key)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrBusy, key)
		}
		return nil, ctx.Err()
	}
}

type memoryLease struct {
	once sync.Once
	m    *Memory
	key  string
	ch   chan struct{}
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() {
		<-l.ch
		l.m.drop(l.key)
	})
	return nil
}

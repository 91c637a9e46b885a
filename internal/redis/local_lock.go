package redisclient

import (
	"context"
	"sync"
)

// LocalLocker serializes callers per appointment id inside a single process.
// Entries are reference counted and removed once no caller holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[int64]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[int64]*localEntry)}
}

func (l *LocalLocker) WithAppointmentLock(ctx context.Context, appointmentID int64, fn func(ctx context.Context) error) error {
	entry := l.ref(appointmentID)
	defer l.unref(appointmentID)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.ch }()

	return fn(ctx)
}

func (l *LocalLocker) ref(appointmentID int64) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[appointmentID]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[appointmentID] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) unref(appointmentID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[appointmentID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, appointmentID)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/loop"
)

// Backend is an in-memory poll backend. It records registrations and
// interest masks and lets tests inject readiness events.
type Backend struct {
	mu        sync.Mutex
	interest  map[int]api.EventFlags
	closedFds []int
	pending   []loop.ReadyEvent
	failAdd   bool
	wake      chan struct{}
	closed    bool
}

// NewBackend creates an empty fake backend.
func NewBackend() *Backend {
	return &Backend{
		interest: make(map[int]api.EventFlags),
		wake:     make(chan struct{}, 1),
	}
}

// Factory returns a loop.BackendFactory handing out this instance.
// Single-slot loops only; multi-slot tests build one backend each.
func (b *Backend) Factory() loop.BackendFactory {
	return func() (loop.Backend, error) { return b, nil }
}

// SetFailAdd makes the next Add calls fail, for rollback tests.
func (b *Backend) SetFailAdd(v bool) {
	b.mu.Lock()
	b.failAdd = v
	b.mu.Unlock()
}

// Interest returns the current mask for fd and whether it is
// registered.
func (b *Backend) Interest(fd int) (api.EventFlags, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.interest[fd]
	return ev, ok
}

// Registered reports whether fd is in the poll set.
func (b *Backend) Registered(fd int) bool {
	_, ok := b.Interest(fd)
	return ok
}

// ClosedFds returns every fd closed through the backend.
func (b *Backend) ClosedFds() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, len(b.closedFds))
	copy(out, b.closedFds)
	return out
}

// Inject queues a readiness event for the next Wait.
func (b *Backend) Inject(fd int, flags api.EventFlags) {
	b.mu.Lock()
	b.pending = append(b.pending, loop.ReadyEvent{Fd: fd, Flags: flags})
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Backend) Add(fd int, ev api.EventFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAdd {
		return api.ErrTableFull
	}
	b.interest[fd] = ev
	return nil
}

func (b *Backend) Mod(fd int, ev api.EventFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.interest[fd]; !ok {
		return api.ErrHandleClosed
	}
	b.interest[fd] = ev
	return nil
}

func (b *Backend) Del(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.interest[fd]; !ok {
		return api.ErrHandleClosed
	}
	delete(b.interest, fd)
	return nil
}

func (b *Backend) Wait(evs []loop.ReadyEvent, timeoutMs int) (int, error) {
	b.mu.Lock()
	n := copy(evs, b.pending)
	b.pending = b.pending[n:]
	b.mu.Unlock()
	if n > 0 {
		return n, nil
	}
	// Block like a real poll wait so service loops don't spin.
	select {
	case <-b.wake:
		b.mu.Lock()
		n = copy(evs, b.pending)
		b.pending = b.pending[n:]
		b.mu.Unlock()
		return n, nil
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return 0, nil
	}
}

func (b *Backend) CloseFd(fd int) error {
	b.mu.Lock()
	b.closedFds = append(b.closedFds, fd)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// IsClosed reports whether the backend was released.
func (b *Backend) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

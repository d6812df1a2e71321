// File: loop/slot.go
// Package loop implements the per-thread slot.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/control"
)

// TickFunc is a periodic-tick entry point, invoked once per service
// pass from the owning goroutine with the current time.
type TickFunc func(now time.Time)

// Slot is one thread-slot: a descriptor table, its exclusive lock, a
// poll backend, posted tasks and tickers. Descriptors are sharded to
// exactly one slot for their lifetime.
type Slot struct {
	index int
	mu    sync.Mutex
	be    Backend

	// table is indexed by descriptor number; nil means free.
	table []*Handle

	// posted holds funcs queued from other goroutines, drained at the
	// top of every service pass. Guarded by the slot lock.
	posted *queue.Queue

	tickers []TickFunc

	log   zerolog.Logger
	stats *control.Stats
}

func newSlot(index, fdLimit int, be Backend, log zerolog.Logger, stats *control.Stats) *Slot {
	return &Slot{
		index:  index,
		be:     be,
		table:  make([]*Handle, fdLimit),
		posted: queue.New(),
		log:    log.With().Int("slot", index).Logger(),
		stats:  stats,
	}
}

// Index returns the slot's position in the loop.
func (s *Slot) Index() int { return s.index }

// FdLimit returns the descriptor table capacity. Descriptors at or
// above it are rejected by Register.
func (s *Slot) FdLimit() int { return len(s.table) }

// Lock acquires the slot's exclusive lock. Every mutation of slot or
// bridge state outside the service goroutine happens inside
// Lock/Unlock, for the full critical section.
func (s *Slot) Lock() { s.mu.Lock() }

// Unlock releases the slot's exclusive lock.
func (s *Slot) Unlock() { s.mu.Unlock() }

// Resolve returns the handle registered for fd, or nil. Caller must
// hold the slot lock; the result must not be cached across a lock
// release.
func (s *Slot) Resolve(fd int) *Handle {
	if fd < 0 || fd >= len(s.table) {
		return nil
	}
	return s.table[fd]
}

// Register inserts a handle for fd into the descriptor table and the
// poll set, with an empty interest mask. Caller must hold the slot
// lock. On any failure the table is left unchanged.
func (s *Slot) Register(fd int, owner any, shadow bool, ready ReadyFunc) (*Handle, error) {
	if fd < 0 || fd >= len(s.table) {
		return nil, fmt.Errorf("register fd %d: %w (limit %d)", fd, api.ErrFdOutOfRange, len(s.table))
	}
	if s.table[fd] != nil {
		return nil, fmt.Errorf("register fd %d: %w", fd, api.ErrTableFull)
	}
	h := &Handle{fd: fd, slot: s, owner: owner, shadow: shadow, ready: ready}
	s.table[fd] = h
	if err := s.be.Add(fd, 0); err != nil {
		s.table[fd] = nil
		return nil, fmt.Errorf("register fd %d: %w", fd, err)
	}
	s.stats.IncHandlesCreated()
	return h, nil
}

// Unregister removes a handle from the poll set and the table and
// closes its descriptor unless the handle is shadow. Caller must hold
// the slot lock.
func (s *Slot) Unregister(h *Handle) error {
	if h == nil || h.closed {
		return api.ErrHandleClosed
	}
	if err := s.be.Del(h.fd); err != nil {
		s.log.Error().Err(err).Int("fd", h.fd).Msg("unregister: poll set removal failed")
		return err
	}
	s.table[h.fd] = nil
	h.closed = true
	h.events = 0
	if !h.shadow {
		if err := s.be.CloseFd(h.fd); err != nil {
			s.log.Warn().Err(err).Int("fd", h.fd).Msg("unregister: close failed")
		}
	}
	s.stats.IncHandlesDestroyed()
	return nil
}

// SetInterest applies set then clear to the handle's interest mask and
// installs the result when it changed. Caller must hold the slot lock.
func (s *Slot) SetInterest(h *Handle, set, clear api.EventFlags) error {
	if h == nil || h.closed {
		return api.ErrHandleClosed
	}
	next := (h.events | set) &^ clear
	if next == h.events {
		return nil
	}
	if err := s.be.Mod(h.fd, next); err != nil {
		return fmt.Errorf("set interest fd %d: %w", h.fd, err)
	}
	h.events = next
	return nil
}

// OnTick registers a periodic-tick entry point. Safe before Start;
// afterwards it must be posted to the owning slot.
func (s *Slot) OnTick(fn TickFunc) {
	s.Lock()
	s.tickers = append(s.tickers, fn)
	s.Unlock()
}

// Post queues fn for execution on the slot's service goroutine before
// its next poll. Safe from any goroutine.
func (s *Slot) Post(fn func()) {
	s.Lock()
	s.posted.Add(fn)
	s.Unlock()
	s.stats.IncTasksPosted()
}

func (s *Slot) drainPosted() {
	for {
		s.Lock()
		if s.posted.Length() == 0 {
			s.Unlock()
			return
		}
		fn := s.posted.Remove().(func())
		s.Unlock()
		fn()
	}
}

// Dispatch delivers one readiness event: the readiness-dispatch entry
// point of the capability surface, invoked by the service goroutine
// and directly by embedders hosting their own loop. The handle is
// re-resolved under the lock and the callback runs outside it, so it
// may re-enter slot operations (watch removal during dispatch is the
// normal descriptor-death path).
func (s *Slot) Dispatch(ev ReadyEvent) {
	s.Lock()
	h := s.Resolve(ev.Fd)
	if h == nil || h.closed || h.ready == nil {
		s.Unlock()
		return
	}
	ready := h.ready
	s.Unlock()

	s.stats.IncReadinessEvents()
	if !ready(h, ev.Flags) {
		s.log.Debug().Int("fd", ev.Fd).Stringer("flags", ev.Flags).Msg("readiness not handled")
	}
}

func (s *Slot) runTickers(now time.Time) {
	s.Lock()
	tickers := make([]TickFunc, len(s.tickers))
	copy(tickers, s.tickers)
	s.Unlock()
	for _, fn := range tickers {
		fn(now)
	}
	s.stats.IncTicks()
}

// service runs one slot's loop until stop is closed.
func (s *Slot) service(stop <-chan struct{}, batch int, tick time.Duration) {
	evs := make([]ReadyEvent, batch)
	timeoutMs := int(tick / time.Millisecond)
	if timeoutMs <= 0 {
		timeoutMs = 1000
	}
	for {
		select {
		case <-stop:
			return
		default:
		}

		s.drainPosted()

		n, err := s.be.Wait(evs, timeoutMs)
		if err != nil {
			s.log.Error().Err(err).Msg("poll wait failed")
			select {
			case <-stop:
				return
			case <-time.After(tick):
			}
			continue
		}
		for i := 0; i < n; i++ {
			s.Dispatch(evs[i])
		}

		s.runTickers(time.Now())
	}
}

// shutdown tears the slot down: every remaining handle leaves the poll
// set, owned (non-shadow) descriptors are closed, then the backend is
// released.
func (s *Slot) shutdown() {
	s.Lock()
	for fd, h := range s.table {
		if h == nil {
			continue
		}
		if err := s.be.Del(fd); err != nil {
			s.log.Warn().Err(err).Int("fd", fd).Msg("shutdown: poll set removal failed")
		}
		if !h.shadow {
			if err := s.be.CloseFd(fd); err != nil {
				s.log.Warn().Err(err).Int("fd", fd).Msg("shutdown: close failed")
			}
		}
		h.closed = true
		s.table[fd] = nil
	}
	s.Unlock()
	if err := s.be.Close(); err != nil {
		s.log.Warn().Err(err).Msg("shutdown: backend close failed")
	}
}

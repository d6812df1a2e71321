// File: bridge/context.go
// Package bridge defines the per-connection bridge context.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-bus/api"
)

// ClosingFunc is the notification sink invoked when a context's
// descriptor is presumed closed: zero watches remain, hangup was seen,
// no timers are pending and the bus library has no buffered work. It
// fires at most once per context.
type ClosingFunc func(ctx *Ctx)

// Ctx ties one bus connection or server object to its watches, timers
// and shadow handle. All mutable fields are guarded by the hosting
// slot's lock.
type Ctx struct {
	id   string
	b    *Binding
	conn api.Connection
	srv  api.Server

	// w holds up to two watch identities for the same descriptor; the
	// bus library may split readable and writable interest across two
	// tokens. A slot is occupied only while the bus considers that
	// watch live.
	w [2]api.Watch

	// shadowFd is the descriptor of the current shadow handle, -1 when
	// none. The handle itself is re-resolved from the slot table under
	// the lock on every use; a raw pointer is never cached across a
	// lock release.
	shadowFd int

	// hup is sticky: once the loop reports hangup it is never cleared.
	hup bool

	// timeouts increments on every timer add and decrements on a
	// remove whose token is still linked in the timer list. A fired
	// entry is already unlinked, so the count drops once the bus
	// library re-arms the timer and later removes it.
	timeouts int

	closing     ClosingFunc
	closingSent bool

	log zerolog.Logger
}

func (b *Binding) newCtx() *Ctx {
	id := uuid.NewString()
	return &Ctx{
		id:       id,
		b:        b,
		shadowFd: -1,
		log:      b.log.With().Str("ctx", id).Logger(),
	}
}

// ID returns the context's log-correlation identity.
func (c *Ctx) ID() string { return c.id }

// Connection returns the wrapped bus connection, nil for server
// contexts.
func (c *Ctx) Connection() api.Connection { return c.conn }

// Server returns the wrapped bus server, nil for connection contexts.
func (c *Ctx) Server() api.Server { return c.srv }

// PendingTimeouts returns the number of timers added and not yet
// removed.
func (c *Ctx) PendingTimeouts() int {
	c.b.slot.Lock()
	defer c.b.slot.Unlock()
	return c.timeouts
}

// HupSeen reports whether hangup was ever observed on the descriptor.
func (c *Ctx) HupSeen() bool {
	c.b.slot.Lock()
	defer c.b.slot.Unlock()
	return c.hup
}

// ShadowFd returns the descriptor of the current shadow handle, or -1.
func (c *Ctx) ShadowFd() int {
	c.b.slot.Lock()
	defer c.b.slot.Unlock()
	return c.shadowFd
}

// watchCountLocked reports occupied identity slots. Caller must hold
// the slot lock.
func (c *Ctx) watchCountLocked() int {
	n := 0
	for _, w := range c.w {
		if w != nil {
			n++
		}
	}
	return n
}

// mergedFlagsLocked ORs the interest of every occupied identity slot.
// Caller must hold the slot lock.
func (c *Ctx) mergedFlagsLocked() api.WatchFlags {
	var flags api.WatchFlags
	for _, w := range c.w {
		if w != nil {
			flags |= w.Flags()
		}
	}
	return flags
}

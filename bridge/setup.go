// File: bridge/setup.go
// Package bridge implements the embedding setup entry points.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/control"
	"github.com/momentics/hioload-bus/loop"
)

// Binding is the bridge's per-slot state: the timer list and the hook
// plumbing for every context hosted on that slot. The timer list lives
// here, not in process-wide state, so independent loops coexist in one
// process.
type Binding struct {
	slot   *loop.Slot
	timers *timerEntry
	log    zerolog.Logger
	stats  *control.Stats
}

// Option customizes binding initialization.
type Option func(*Binding)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Binding) { b.log = log }
}

// WithStats attaches a counter set.
func WithStats(st *control.Stats) Option {
	return func(b *Binding) { b.stats = st }
}

// Attach creates the bridge state for one slot and registers its timer
// sweep with the slot's periodic tick.
func Attach(slot *loop.Slot, opts ...Option) *Binding {
	b := &Binding{
		slot: slot,
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(b)
	}
	slot.OnTick(b.Tick)
	return b
}

// Slot returns the hosting thread-slot.
func (b *Binding) Slot() *loop.Slot { return b.slot }

func (b *Binding) watchHooks(ctx *Ctx) api.WatchHooks {
	return api.WatchHooks{
		Add:    func(w api.Watch) bool { return b.addWatch(ctx, w) },
		Remove: func(w api.Watch) { b.removeWatch(ctx, w) },
		Toggle: func(w api.Watch) { b.toggleWatch(ctx, w) },
	}
}

func (b *Binding) timeoutHooks(ctx *Ctx) api.TimeoutHooks {
	return api.TimeoutHooks{
		Add:    func(t api.Timeout) bool { return b.addTimeout(ctx, t) },
		Remove: func(t api.Timeout) { b.removeTimeout(ctx, t) },
		Toggle: func(t api.Timeout) { b.toggleTimeout(ctx, t) },
	}
}

// ConnectionSetup attaches event plumbing to an existing bus
// connection, along the same lines as the bus library's own main-loop
// glue. The closing sink may be nil.
func (b *Binding) ConnectionSetup(conn api.Connection, closing ClosingFunc) (*Ctx, error) {
	ctx := b.newCtx()
	ctx.conn = conn
	ctx.closing = closing

	if !conn.SetWatchHooks(b.watchHooks(ctx)) {
		return nil, fmt.Errorf("connection watch hooks: %w", api.ErrHooksRejected)
	}
	if !conn.SetTimeoutHooks(b.timeoutHooks(ctx)) {
		return nil, fmt.Errorf("connection timeout hooks: %w", api.ErrHooksRejected)
	}
	conn.SetDispatchStatusFunc(func(s api.DispatchStatus) { b.onDispatchStatus(ctx, s) })

	ctx.log.Debug().Msg("connection plumbing attached")
	return ctx, nil
}

// ServerListen starts a listening bus server through the binding's
// listen function and attaches event plumbing to it. On hook refusal
// the server is disconnected and the error propagated; no partial
// state remains.
func (b *Binding) ServerListen(address string, listen api.ListenFunc) (*Ctx, api.Server, error) {
	srv, err := listen(address)
	if err != nil {
		return nil, nil, fmt.Errorf("server listen %q: %w", address, err)
	}

	ctx := b.newCtx()
	ctx.srv = srv

	if !srv.SetWatchHooks(b.watchHooks(ctx)) {
		srv.Disconnect()
		return nil, nil, fmt.Errorf("server watch hooks: %w", api.ErrHooksRejected)
	}
	if !srv.SetTimeoutHooks(b.timeoutHooks(ctx)) {
		srv.Disconnect()
		return nil, nil, fmt.Errorf("server timeout hooks: %w", api.ErrHooksRejected)
	}

	ctx.log.Debug().Str("address", address).Msg("server plumbing attached")
	return ctx, srv, nil
}

// File: bridge/dispatch.go
// Package bridge implements the readiness dispatcher.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/loop"
)

// onReady is invoked by the slot's service goroutine when a shadow
// handle's descriptor reports readiness. Ordering is fixed: forward to
// watches, drain dispatch, then the destroy check, so watch changes
// made synchronously during dispatch are observed in the same pass.
func (b *Binding) onReady(h *loop.Handle, ev api.EventFlags) bool {
	ctx, ok := h.Owner().(*Ctx)
	if !ok {
		return false
	}

	flags := ev.ToWatchFlags()

	b.slot.Lock()
	if ev&api.EventHangup != 0 {
		ctx.hup = true
	}
	watches := ctx.w
	b.slot.Unlock()

	// Forwarding runs outside the lock: handling readiness inside the
	// bus library can synchronously add or remove its own watches.
	for _, w := range watches {
		if w != nil && !w.Handle(flags) {
			ctx.log.Error().Int("fd", h.Fd()).Stringer("flags", flags).Msg("watch handle failed")
		}
	}

	switch {
	case ctx.conn != nil:
		// Synchronous, non-preemptible drain, bounded by buffered
		// data; this matches the bus library's own dispatch contract.
		drained := false
		for ctx.conn.DispatchStatus() == api.DispatchDataRemains {
			ctx.conn.Dispatch()
			drained = true
		}
		if drained {
			b.stats.IncDispatchDrains()
		}

		b.slot.Lock()
		closing := b.checkDestroyLocked(ctx)
		b.slot.Unlock()
		if closing != nil {
			closing()
		}

	case ctx.srv != nil:
		// Peer acceptance is the bus library's own new-connection
		// callback; readiness on a server has no further action here.
		ctx.log.Debug().Stringer("flags", flags).Msg("server readiness")
	}

	return true
}

// onDispatchStatus is the bus library's dispatch-status-changed
// notification. Buffered work is drained from the readiness path, so
// the status change itself is only logged.
func (b *Binding) onDispatchStatus(ctx *Ctx, s api.DispatchStatus) {
	ctx.log.Debug().Stringer("status", s).Msg("dispatch status changed")
}

// File: bridge/watch.go
// Package bridge implements the watch registry.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The bus library can present readability and writability as two
// independent watch tokens for the same descriptor, arriving in any
// order, while the loop's readiness unit is the descriptor with one
// unified interest mask. The registry therefore keeps up to two
// identity slots per context and installs the OR of their interest.

package bridge

import (
	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/loop"
)

// installMergedLocked recomputes the merged interest mask and installs
// it on the shadow handle. Caller must hold the slot lock.
func (b *Binding) installMergedLocked(ctx *Ctx, h *loop.Handle) {
	ev := ctx.mergedFlagsLocked().ToEventFlags()
	clear := (api.EventReadable | api.EventWritable) &^ ev
	if err := b.slot.SetInterest(h, ev, clear); err != nil {
		ctx.log.Error().Err(err).Int("fd", h.Fd()).Msg("interest update failed")
	}
}

// addWatch is the bus library's watch-add callback. Idempotent: a
// token already recorded only recomputes the merge. Returns false on
// failure with no partial state left behind.
func (b *Binding) addWatch(ctx *Ctx, w api.Watch) bool {
	b.slot.Lock()

	h, err := b.shadowHandleLocked(ctx, w.Fd(), true)
	if err != nil {
		b.slot.Unlock()
		ctx.log.Error().Err(err).Int("fd", w.Fd()).Msg("add watch: no shadow handle")
		return false
	}

	found := false
	for i := range ctx.w {
		if ctx.w[i] == w {
			found = true
			break
		}
	}
	if !found {
		for i := range ctx.w {
			if ctx.w[i] == nil {
				ctx.w[i] = w
				break
			}
		}
	}

	b.installMergedLocked(ctx, h)
	b.slot.Unlock()

	b.stats.IncWatchesAdded()
	ctx.log.Debug().Int("fd", w.Fd()).Stringer("flags", w.Flags()).Msg("watch added")
	return true
}

// removeWatch is the bus library's watch-remove callback. A descriptor
// with no shadow handle is presumed already gone; the removal is a
// silent no-op.
func (b *Binding) removeWatch(ctx *Ctx, w api.Watch) {
	b.slot.Lock()

	h, err := b.shadowHandleLocked(ctx, w.Fd(), false)
	if err != nil {
		b.slot.Unlock()
		ctx.log.Error().Err(err).Int("fd", w.Fd()).Msg("remove watch: lookup failed")
		return
	}
	if h == nil {
		b.slot.Unlock()
		return
	}

	for i := range ctx.w {
		if ctx.w[i] == w {
			ctx.w[i] = nil
			break
		}
	}

	b.installMergedLocked(ctx, h)
	closing := b.checkDestroyLocked(ctx)
	b.slot.Unlock()

	b.stats.IncWatchesRemoved()
	ctx.log.Debug().Int("fd", w.Fd()).Msg("watch removed")
	if closing != nil {
		closing()
	}
}

// toggleWatch dispatches on the token's enabled state.
func (b *Binding) toggleWatch(ctx *Ctx, w api.Watch) {
	if w.Enabled() {
		b.addWatch(ctx, w)
	} else {
		b.removeWatch(ctx, w)
	}
}

// File: bridge/shadow.go
// Package bridge implements the shadow handle lifecycle.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"fmt"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/loop"
)

// shadowHandleLocked retrieves the existing shadow handle for fd, or
// creates one when createOK is set. Returns (nil, nil) when absent and
// creation is not allowed. Caller must hold the slot lock.
//
// A descriptor already registered to another context is a contract
// violation by the bus library, reported as an error and never
// silently reassigned.
func (b *Binding) shadowHandleLocked(ctx *Ctx, fd int, createOK bool) (*loop.Handle, error) {
	if fd < 0 || fd >= b.slot.FdLimit() {
		return nil, fmt.Errorf("fd %d vs limit %d: %w", fd, b.slot.FdLimit(), api.ErrFdOutOfRange)
	}

	if h := b.slot.Resolve(fd); h != nil {
		if h.Owner() != ctx {
			return nil, fmt.Errorf("fd %d: %w", fd, api.ErrSlotMismatch)
		}
		return h, nil
	}

	if !createOK {
		return nil, nil
	}

	ctx.log.Debug().Int("fd", fd).Msg("creating shadow handle")

	h, err := b.slot.Register(fd, ctx, true, b.onReady)
	if err != nil {
		return nil, fmt.Errorf("shadow handle: %w", err)
	}
	ctx.shadowFd = fd
	return h, nil
}

// destroyShadowLocked removes the shadow handle from the poll set and
// the descriptor table. Callers guarantee no watch identity still
// references it. Caller must hold the slot lock.
func (b *Binding) destroyShadowLocked(ctx *Ctx, h *loop.Handle) {
	ctx.log.Debug().Int("fd", h.Fd()).Msg("destroying shadow handle")
	if err := b.slot.Unregister(h); err != nil {
		ctx.log.Error().Err(err).Int("fd", h.Fd()).Msg("shadow handle unregister failed")
	}
	ctx.shadowFd = -1
}

// checkDestroyLocked tears the shadow handle down once no watch
// identity remains, and decides whether the closing notification is
// due. It runs after every watch removal and after every readiness
// dispatch, so a watch state change made synchronously during dispatch
// is observed in the same pass.
//
// The returned func, if non-nil, is the closing notification; the
// caller invokes it after releasing the slot lock. Caller must hold
// the slot lock.
func (b *Binding) checkDestroyLocked(ctx *Ctx) func() {
	if ctx.watchCountLocked() != 0 {
		return nil
	}

	if ctx.shadowFd >= 0 {
		if h := b.slot.Resolve(ctx.shadowFd); h != nil && h.Owner() == ctx {
			b.destroyShadowLocked(ctx, h)
		} else {
			ctx.shadowFd = -1
		}
	}

	// Loss of all watches is the only close signal the bus library
	// gives us. The notification additionally waits for hangup, timer
	// drain and dispatch drain so it cannot outrun buffered work.
	if ctx.conn == nil || !ctx.hup || ctx.timeouts != 0 || ctx.closingSent {
		return nil
	}
	if ctx.conn.DispatchStatus() == api.DispatchDataRemains {
		return nil
	}

	ctx.closingSent = true
	b.stats.IncClosings()
	closing := ctx.closing
	if closing == nil {
		return nil
	}
	return func() { closing(ctx) }
}

// File: loop/handle.go
// Package loop defines the per-descriptor handle.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "github.com/momentics/hioload-bus/api"

// ReadyFunc is invoked by the slot's service goroutine when the
// handle's descriptor reports readiness. The slot lock is NOT held
// during the call, so the callback may re-enter slot operations.
// The return value reports whether the event was handled.
type ReadyFunc func(h *Handle, ev api.EventFlags) bool

// Handle is one slot in the poll set: a descriptor, its current
// interest mask and its owner. Once registered it is owned by the
// slot's table; holders outside the table keep only the descriptor
// number and re-resolve under the slot lock, never a cached pointer
// across a lock release.
type Handle struct {
	fd     int
	slot   *Slot
	owner  any
	ready  ReadyFunc
	events api.EventFlags

	// shadow marks a handle whose descriptor lifecycle belongs to an
	// external library. The loop must not close a shadow fd on
	// unregister or shutdown.
	shadow bool

	closed bool
}

// Fd returns the descriptor number.
func (h *Handle) Fd() int { return h.fd }

// Owner returns the opaque owner recorded at registration.
func (h *Handle) Owner() any { return h.owner }

// Shadow reports whether the descriptor's lifecycle is external.
func (h *Handle) Shadow() bool { return h.shadow }

// Interest returns the currently installed interest mask.
// Caller must hold the slot lock.
func (h *Handle) Interest() api.EventFlags { return h.events }

// Closed reports whether the handle was unregistered.
// Caller must hold the slot lock.
func (h *Handle) Closed() bool { return h.closed }

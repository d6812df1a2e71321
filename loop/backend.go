// File: loop/backend.go
// Package loop defines the poll backend contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "github.com/momentics/hioload-bus/api"

// ReadyEvent is one readiness notification from the backend.
type ReadyEvent struct {
	Fd    int
	Flags api.EventFlags
}

// Backend abstracts the OS readiness facility behind a slot. The
// production implementation is epoll; tests substitute an in-memory
// fake. All calls are made from the owning slot only, under its lock
// for Add/Mod/Del and from the service goroutine for Wait.
type Backend interface {
	// Add registers a descriptor with the given interest. Level
	// triggered; an empty mask still reports hangup.
	Add(fd int, ev api.EventFlags) error

	// Mod replaces the interest mask of a registered descriptor.
	Mod(fd int, ev api.EventFlags) error

	// Del removes a descriptor from the poll set.
	Del(fd int) error

	// Wait blocks up to timeoutMs for readiness and fills evs.
	// Interruption by a signal is not an error; it returns 0, nil.
	Wait(evs []ReadyEvent, timeoutMs int) (int, error)

	// CloseFd closes a descriptor the loop owns. Shadow handles never
	// reach this.
	CloseFd(fd int) error

	// Close releases the backend itself.
	Close() error
}

// BackendFactory builds one Backend per slot.
type BackendFactory func() (Backend, error)

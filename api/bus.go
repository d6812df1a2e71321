// File: api/bus.go
// Package api defines the message-bus library surface consumed by the bridge.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "time"

// Watch is an opaque token from the bus library asking to be notified
// when a descriptor is readable and/or writable. The bridge does not
// own the token; it only records which descriptor it maps to and
// merges its interest into the loop's per-descriptor mask.
type Watch interface {
	// Fd returns the underlying descriptor number.
	Fd() int

	// Flags returns the interest this watch asks for.
	Flags() WatchFlags

	// Enabled reports whether the bus library considers the watch
	// active. Toggle callbacks dispatch on this.
	Enabled() bool

	// Handle delivers readiness to the bus library. A false return is
	// a handling failure; the bridge logs it and carries on.
	Handle(flags WatchFlags) bool
}

// Timeout is an opaque timer token from the bus library.
type Timeout interface {
	Interval() time.Duration
	Enabled() bool

	// Handle fires the timer inside the bus library.
	Handle()
}

// DispatchStatus mirrors the bus library's report on its internal
// dispatch queue.
type DispatchStatus int

const (
	// DispatchComplete means no buffered work remains.
	DispatchComplete DispatchStatus = iota

	// DispatchDataRemains means buffered messages still await dispatch.
	DispatchDataRemains

	// DispatchNeedMemory means dispatch stalled on allocation and
	// should be retried later.
	DispatchNeedMemory
)

func (s DispatchStatus) String() string {
	switch s {
	case DispatchComplete:
		return "complete"
	case DispatchDataRemains:
		return "data-remains"
	case DispatchNeedMemory:
		return "need-memory"
	default:
		return "unknown"
	}
}

// WatchHooks is the callback set a connection or server object accepts
// for watch lifecycle notification. Add returning false tells the bus
// library the watch could not be registered.
type WatchHooks struct {
	Add    func(w Watch) bool
	Remove func(w Watch)
	Toggle func(w Watch)
}

// TimeoutHooks is the callback set for timer lifecycle notification.
type TimeoutHooks struct {
	Add    func(t Timeout) bool
	Remove func(t Timeout)
	Toggle func(t Timeout)
}

// Connection is one bus connection object. The bridge drives its
// dispatch queue from readiness events; it never reads or writes the
// descriptor itself.
type Connection interface {
	// SetWatchHooks installs the watch callbacks. False means the bus
	// library refused them.
	SetWatchHooks(h WatchHooks) bool

	// SetTimeoutHooks installs the timer callbacks.
	SetTimeoutHooks(h TimeoutHooks) bool

	// SetDispatchStatusFunc installs the buffered-work notification.
	SetDispatchStatusFunc(fn func(DispatchStatus))

	// DispatchStatus reports whether buffered work remains.
	DispatchStatus() DispatchStatus

	// Dispatch processes one unit of buffered work and returns the
	// status after it.
	Dispatch() DispatchStatus
}

// Server is a listening bus object waiting for inbound peers. Peer
// acceptance is the bus library's own callback and stays outside the
// bridge.
type Server interface {
	SetWatchHooks(h WatchHooks) bool
	SetTimeoutHooks(h TimeoutHooks) bool

	// Disconnect stops listening. The bridge calls it when hook
	// installation fails partway through setup.
	Disconnect()
}

// ListenFunc starts a listening server object at the given bus address.
// Bus bindings supply it to ServerListen; the bridge attaches event
// plumbing to whatever it returns.
type ListenFunc func(address string) (Server, error)

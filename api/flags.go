// File: api/flags.go
// Package api defines readiness and watch flag bitmasks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// EventFlags is the loop-side readiness bitmask, the unit the poll
// backend reports per descriptor.
type EventFlags uint32

const (
	EventReadable EventFlags = 1 << iota
	EventWritable
	EventHangup
)

// WatchFlags is the bus-side interest bitmask. The bus library may
// split readable and writable interest across two watch tokens for the
// same descriptor; the bridge merges them back into one EventFlags.
type WatchFlags uint32

const (
	WatchReadable WatchFlags = 1 << iota
	WatchWritable
)

// ToEventFlags maps bus watch interest onto loop readiness interest.
func (w WatchFlags) ToEventFlags() EventFlags {
	var e EventFlags
	if w&WatchReadable != 0 {
		e |= EventReadable
	}
	if w&WatchWritable != 0 {
		e |= EventWritable
	}
	return e
}

// ToWatchFlags maps loop readiness back onto bus watch flags. Hangup
// has no bus-side equivalent and is dropped; callers record it
// separately.
func (e EventFlags) ToWatchFlags() WatchFlags {
	var w WatchFlags
	if e&EventReadable != 0 {
		w |= WatchReadable
	}
	if e&EventWritable != 0 {
		w |= WatchWritable
	}
	return w
}

func (e EventFlags) String() string {
	s := ""
	if e&EventReadable != 0 {
		s += "r"
	}
	if e&EventWritable != 0 {
		s += "w"
	}
	if e&EventHangup != 0 {
		s += "h"
	}
	if s == "" {
		return "-"
	}
	return s
}

func (w WatchFlags) String() string {
	s := ""
	if w&WatchReadable != 0 {
		s += "r"
	}
	if w&WatchWritable != 0 {
		s += "w"
	}
	if s == "" {
		return "-"
	}
	return s
}

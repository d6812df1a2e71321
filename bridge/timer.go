// File: bridge/timer.go
// Package bridge implements the software timer list.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The loop has no per-descriptor OS timers; bus timeouts run as a
// cooperative list swept once per service pass. Resolution is whole
// seconds: sub-second intervals are clamped up so a timer can never
// fire earlier than requested at this granularity.

package bridge

import (
	"time"

	"github.com/momentics/hioload-bus/api"
)

// timerEntry is one pending software timer, linked in insertion order.
// The sweep is linear, so list order carries no meaning.
type timerEntry struct {
	next *timerEntry
	tok  api.Timeout
	fire time.Time
}

// clampInterval raises sub-second intervals to one second and rounds
// the rest up to the next whole second.
func clampInterval(iv time.Duration) time.Duration {
	if iv < time.Second {
		return time.Second
	}
	if r := iv % time.Second; r != 0 {
		iv += time.Second - r
	}
	return iv
}

// addTimeout is the bus library's timeout-add callback. A disabled
// timer is reported as accepted without being enqueued.
func (b *Binding) addTimeout(ctx *Ctx, t api.Timeout) bool {
	if !t.Enabled() {
		return true
	}

	iv := clampInterval(t.Interval())
	e := &timerEntry{tok: t, fire: time.Now().Add(iv)}

	b.slot.Lock()
	e.next = b.timers
	b.timers = e
	ctx.timeouts++
	b.slot.Unlock()

	b.stats.IncTimeoutsAdded()
	ctx.log.Debug().Dur("interval", t.Interval()).Dur("clamped", iv).Msg("timeout added")
	return true
}

// removeTimeout unlinks the entry whose token matches. No-op when the
// token is not in the list.
func (b *Binding) removeTimeout(ctx *Ctx, t api.Timeout) {
	b.slot.Lock()
	for p := &b.timers; *p != nil; p = &(*p).next {
		if (*p).tok == t {
			*p = (*p).next
			ctx.timeouts--
			b.slot.Unlock()
			b.stats.IncTimeoutsRemoved()
			ctx.log.Debug().Msg("timeout removed")
			return
		}
	}
	b.slot.Unlock()
}

// toggleTimeout dispatches on the token's enabled state.
func (b *Binding) toggleTimeout(ctx *Ctx, t api.Timeout) {
	if t.Enabled() {
		b.addTimeout(ctx, t)
	} else {
		b.removeTimeout(ctx, t)
	}
}

// Tick sweeps the timer list, firing and unlinking every entry whose
// deadline is at or before now. Entries are evaluated independently of
// list order. Registered with the slot's periodic tick; also callable
// directly with a synthetic now for deterministic tests.
func (b *Binding) Tick(now time.Time) {
	var due []api.Timeout

	b.slot.Lock()
	for p := &b.timers; *p != nil; {
		if !(*p).fire.After(now) {
			due = append(due, (*p).tok)
			*p = (*p).next
			continue
		}
		p = &(*p).next
	}
	b.slot.Unlock()

	// Firing outside the lock: the handler may re-enter and arm the
	// next interval.
	for _, t := range due {
		b.log.Debug().Msg("firing timeout")
		t.Handle()
		b.stats.IncTimeoutsFired()
	}
}

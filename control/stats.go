// control/stats.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for system-level monitoring of the loop and the
// bridge. All counters are atomic; a nil *Stats disables collection,
// so every mutator is nil-safe.

package control

import (
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Stats aggregates bridge and loop activity counters.
type Stats struct {
	started time.Time

	handlesCreated   atomic.Int64
	handlesDestroyed atomic.Int64
	watchesAdded     atomic.Int64
	watchesRemoved   atomic.Int64
	timeoutsAdded    atomic.Int64
	timeoutsRemoved  atomic.Int64
	timeoutsFired    atomic.Int64
	readinessEvents  atomic.Int64
	dispatchDrains   atomic.Int64
	closings         atomic.Int64
	tasksPosted      atomic.Int64
	ticks            atomic.Int64
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) IncHandlesCreated() {
	if s != nil {
		s.handlesCreated.Add(1)
	}
}

func (s *Stats) IncHandlesDestroyed() {
	if s != nil {
		s.handlesDestroyed.Add(1)
	}
}

func (s *Stats) IncWatchesAdded() {
	if s != nil {
		s.watchesAdded.Add(1)
	}
}

func (s *Stats) IncWatchesRemoved() {
	if s != nil {
		s.watchesRemoved.Add(1)
	}
}

func (s *Stats) IncTimeoutsAdded() {
	if s != nil {
		s.timeoutsAdded.Add(1)
	}
}

func (s *Stats) IncTimeoutsRemoved() {
	if s != nil {
		s.timeoutsRemoved.Add(1)
	}
}

func (s *Stats) IncTimeoutsFired() {
	if s != nil {
		s.timeoutsFired.Add(1)
	}
}

func (s *Stats) IncReadinessEvents() {
	if s != nil {
		s.readinessEvents.Add(1)
	}
}

func (s *Stats) IncDispatchDrains() {
	if s != nil {
		s.dispatchDrains.Add(1)
	}
}

func (s *Stats) IncClosings() {
	if s != nil {
		s.closings.Add(1)
	}
}

func (s *Stats) IncTasksPosted() {
	if s != nil {
		s.tasksPosted.Add(1)
	}
}

func (s *Stats) IncTicks() {
	if s != nil {
		s.ticks.Add(1)
	}
}

// HandlesLive returns created minus destroyed.
func (s *Stats) HandlesLive() int64 {
	if s == nil {
		return 0
	}
	return s.handlesCreated.Load() - s.handlesDestroyed.Load()
}

// Closings returns the number of closing notifications delivered.
func (s *Stats) Closings() int64 {
	if s == nil {
		return 0
	}
	return s.closings.Load()
}

// TimeoutsFired returns the number of software timers fired.
func (s *Stats) TimeoutsFired() int64 {
	if s == nil {
		return 0
	}
	return s.timeoutsFired.Load()
}

// Snapshot returns the latest counter values.
func (s *Stats) Snapshot() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return map[string]any{
		"started":           s.started,
		"handles_created":   s.handlesCreated.Load(),
		"handles_destroyed": s.handlesDestroyed.Load(),
		"watches_added":     s.watchesAdded.Load(),
		"watches_removed":   s.watchesRemoved.Load(),
		"timeouts_added":    s.timeoutsAdded.Load(),
		"timeouts_removed":  s.timeoutsRemoved.Load(),
		"timeouts_fired":    s.timeoutsFired.Load(),
		"readiness_events":  s.readinessEvents.Load(),
		"dispatch_drains":   s.dispatchDrains.Load(),
		"closings":          s.closings.Load(),
		"tasks_posted":      s.tasksPosted.Load(),
		"ticks":             s.ticks.Load(),
	}
}

// SnapshotJSON renders the snapshot for debug endpoints and logs.
func (s *Stats) SnapshotJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

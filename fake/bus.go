// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-bus/api"
)

// Watch is a scriptable watch token.
type Watch struct {
	mu       sync.Mutex
	fd       int
	flags    api.WatchFlags
	enabled  bool
	fail     bool
	handled  []api.WatchFlags
	onHandle func(api.WatchFlags)
}

// NewWatch creates an enabled watch token for fd with the given
// interest.
func NewWatch(fd int, flags api.WatchFlags) *Watch {
	return &Watch{fd: fd, flags: flags, enabled: true}
}

func (w *Watch) Fd() int { return w.fd }

func (w *Watch) Flags() api.WatchFlags {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flags
}

func (w *Watch) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

func (w *Watch) Handle(flags api.WatchFlags) bool {
	w.mu.Lock()
	w.handled = append(w.handled, flags)
	fail := w.fail
	onHandle := w.onHandle
	w.mu.Unlock()
	if onHandle != nil {
		onHandle(flags)
	}
	return !fail
}

// SetOnHandle installs a callback invoked on every Handle, letting
// tests model a bus library that mutates its watches synchronously
// while readiness is being delivered.
func (w *Watch) SetOnHandle(fn func(api.WatchFlags)) {
	w.mu.Lock()
	w.onHandle = fn
	w.mu.Unlock()
}

// SetEnabled flips the token's enabled state.
func (w *Watch) SetEnabled(v bool) {
	w.mu.Lock()
	w.enabled = v
	w.mu.Unlock()
}

// SetFail makes Handle report failure.
func (w *Watch) SetFail(v bool) {
	w.mu.Lock()
	w.fail = v
	w.mu.Unlock()
}

// Handled returns every flag set delivered so far.
func (w *Watch) Handled() []api.WatchFlags {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]api.WatchFlags, len(w.handled))
	copy(out, w.handled)
	return out
}

// Timeout is a scriptable timer token.
type Timeout struct {
	mu       sync.Mutex
	interval time.Duration
	enabled  bool
	fired    int
}

// NewTimeout creates an enabled timer token.
func NewTimeout(interval time.Duration) *Timeout {
	return &Timeout{interval: interval, enabled: true}
}

func (t *Timeout) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Timeout) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Timeout) Handle() {
	t.mu.Lock()
	t.fired++
	t.mu.Unlock()
}

// SetEnabled flips the token's enabled state.
func (t *Timeout) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

// Fired returns how many times the timer fired.
func (t *Timeout) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Conn is a scriptable bus connection. Dispatch statuses are consumed
// from a programmed sequence; the last element repeats forever.
type Conn struct {
	mu           sync.Mutex
	watchHooks   api.WatchHooks
	timeoutHooks api.TimeoutHooks
	statusFunc   func(api.DispatchStatus)
	statuses     []api.DispatchStatus
	dispatched   int
	rejectHooks  bool
}

// NewConn creates a connection with no buffered work.
func NewConn() *Conn {
	return &Conn{statuses: []api.DispatchStatus{api.DispatchComplete}}
}

// SetStatusSequence programs the dispatch-status sequence. Each
// Dispatch call advances it by one; DispatchStatus reads the current
// position without advancing.
func (c *Conn) SetStatusSequence(st ...api.DispatchStatus) {
	c.mu.Lock()
	c.statuses = st
	c.dispatched = 0
	c.mu.Unlock()
}

// SetRejectHooks makes hook installation fail.
func (c *Conn) SetRejectHooks(v bool) {
	c.mu.Lock()
	c.rejectHooks = v
	c.mu.Unlock()
}

func (c *Conn) SetWatchHooks(h api.WatchHooks) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectHooks {
		return false
	}
	c.watchHooks = h
	return true
}

func (c *Conn) SetTimeoutHooks(h api.TimeoutHooks) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectHooks {
		return false
	}
	c.timeoutHooks = h
	return true
}

func (c *Conn) SetDispatchStatusFunc(fn func(api.DispatchStatus)) {
	c.mu.Lock()
	c.statusFunc = fn
	c.mu.Unlock()
}

func (c *Conn) statusAt(i int) api.DispatchStatus {
	if len(c.statuses) == 0 {
		return api.DispatchComplete
	}
	if i >= len(c.statuses) {
		i = len(c.statuses) - 1
	}
	return c.statuses[i]
}

func (c *Conn) DispatchStatus() api.DispatchStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusAt(c.dispatched)
}

func (c *Conn) Dispatch() api.DispatchStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatched++
	return c.statusAt(c.dispatched)
}

// Dispatched returns the number of Dispatch calls.
func (c *Conn) Dispatched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatched
}

// WatchHooks returns the installed watch callbacks, for tests driving
// the bus side directly.
func (c *Conn) WatchHooks() api.WatchHooks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchHooks
}

// TimeoutHooks returns the installed timer callbacks.
func (c *Conn) TimeoutHooks() api.TimeoutHooks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeoutHooks
}

// Server is a scriptable bus server.
type Server struct {
	mu           sync.Mutex
	watchHooks   api.WatchHooks
	timeoutHooks api.TimeoutHooks
	rejectHooks  bool
	disconnected bool
}

// NewServer creates a listening fake server.
func NewServer() *Server { return &Server{} }

// SetRejectHooks makes hook installation fail.
func (s *Server) SetRejectHooks(v bool) {
	s.mu.Lock()
	s.rejectHooks = v
	s.mu.Unlock()
}

func (s *Server) SetWatchHooks(h api.WatchHooks) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectHooks {
		return false
	}
	s.watchHooks = h
	return true
}

func (s *Server) SetTimeoutHooks(h api.TimeoutHooks) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectHooks {
		return false
	}
	s.timeoutHooks = h
	return true
}

func (s *Server) Disconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
}

// Disconnected reports whether Disconnect was called.
func (s *Server) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// WatchHooks returns the installed watch callbacks.
func (s *Server) WatchHooks() api.WatchHooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchHooks
}

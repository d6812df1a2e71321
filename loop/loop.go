// File: loop/loop.go
// Package loop implements the sharded event loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/control"
)

// Config carries the loop's sizing parameters.
type Config struct {
	// Slots is the number of thread-slots, each with its own service
	// goroutine, descriptor table and poll backend.
	Slots int

	// FdLimitPerSlot caps the descriptor table of each slot.
	FdLimitPerSlot int

	// PollBatch is the readiness batch size per poll wait.
	PollBatch int

	// TickInterval bounds a poll wait so periodic ticks keep running
	// on idle slots. Software timer resolution is whole seconds, so
	// anything at or below one second is fine.
	TickInterval time.Duration
}

// DefaultConfig returns sizing suitable for tests and small embeddings.
func DefaultConfig() Config {
	return Config{
		Slots:          1,
		FdLimitPerSlot: 1024,
		PollBatch:      128,
		TickInterval:   time.Second,
	}
}

// Option customizes loop construction.
type Option func(*Loop)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithStats attaches a counter set shared with the bridge.
func WithStats(st *control.Stats) Option {
	return func(l *Loop) { l.stats = st }
}

// WithBackendFactory overrides the platform poll backend, one instance
// per slot. Tests install the fake backend through this.
func WithBackendFactory(f BackendFactory) Option {
	return func(l *Loop) { l.factory = f }
}

// Loop owns a fixed set of slots and shards descriptors across them.
type Loop struct {
	cfg     Config
	slots   []*Slot
	factory BackendFactory
	log     zerolog.Logger
	stats   *control.Stats

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	closed  bool
	mu      sync.Mutex
}

// New builds a loop from cfg. Backends are created eagerly so a
// missing platform facility fails construction, not first use.
func New(cfg Config, opts ...Option) (*Loop, error) {
	if cfg.Slots <= 0 || cfg.FdLimitPerSlot <= 0 || cfg.PollBatch <= 0 {
		return nil, fmt.Errorf("loop config: %w", api.ErrInvalidArgument)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	l := &Loop{
		cfg:     cfg,
		factory: DefaultBackendFactory(),
		log:     zerolog.Nop(),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	l.slots = make([]*Slot, cfg.Slots)
	for i := range l.slots {
		be, err := l.factory()
		if err != nil {
			for j := 0; j < i; j++ {
				_ = l.slots[j].be.Close()
			}
			return nil, fmt.Errorf("slot %d backend: %w", i, err)
		}
		l.slots[i] = newSlot(i, cfg.FdLimitPerSlot, be, l.log, l.stats)
	}
	return l, nil
}

// Slots returns the slot count.
func (l *Loop) Slots() int { return len(l.slots) }

// Slot returns the slot at index i.
func (l *Loop) Slot(i int) *Slot { return l.slots[i] }

// SlotFor returns the slot a descriptor shards to. The mapping is
// stable for the descriptor's lifetime.
func (l *Loop) SlotFor(fd int) *Slot {
	if fd < 0 {
		fd = -fd
	}
	return l.slots[fd%len(l.slots)]
}

// Start launches one service goroutine per slot.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return api.ErrLoopClosed
	}
	if l.started {
		return nil
	}
	l.started = true
	for _, s := range l.slots {
		l.wg.Add(1)
		go func(s *Slot) {
			defer l.wg.Done()
			s.service(l.stop, l.cfg.PollBatch, l.cfg.TickInterval)
		}(s)
	}
	return nil
}

// Close stops the service goroutines and tears every slot down.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stop)
	l.mu.Unlock()

	l.wg.Wait()
	for _, s := range l.slots {
		s.shutdown()
	}
	return nil
}

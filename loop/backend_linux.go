//go:build linux
// +build linux

// File: loop/backend_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) poll backend. Level-triggered: the bridge merges
// level-triggered watch requests from the bus library, so edge
// triggering would lose wakeups when a watch is re-added while data
// is already buffered.

package loop

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-bus/api"
)

type epollBackend struct {
	epfd   int
	events []unix.EpollEvent
}

// NewEpollBackend creates the default Linux backend.
func NewEpollBackend() (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollBackend{epfd: epfd}, nil
}

// DefaultBackendFactory returns the platform backend constructor.
func DefaultBackendFactory() BackendFactory {
	return NewEpollBackend
}

func toEpoll(ev api.EventFlags) uint32 {
	var e uint32
	if ev&api.EventReadable != 0 {
		e |= unix.EPOLLIN
	}
	if ev&api.EventWritable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpoll(e uint32) api.EventFlags {
	var ev api.EventFlags
	if e&unix.EPOLLIN != 0 {
		ev |= api.EventReadable
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= api.EventWritable
	}
	if e&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		ev |= api.EventHangup
	}
	return ev
}

func (b *epollBackend) Add(fd int, ev api.EventFlags) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &e); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (b *epollBackend) Mod(fd int, ev api.EventFlags) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &e); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (b *epollBackend) Del(fd int) error {
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (b *epollBackend) Wait(evs []ReadyEvent, timeoutMs int) (int, error) {
	if len(b.events) < len(evs) {
		b.events = make([]unix.EpollEvent, len(evs))
	}
	n, err := unix.EpollWait(b.epfd, b.events[:len(evs)], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		evs[i] = ReadyEvent{
			Fd:    int(b.events[i].Fd),
			Flags: fromEpoll(b.events[i].Events),
		}
	}
	return n, nil
}

func (b *epollBackend) CloseFd(fd int) error {
	return unix.Close(fd)
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}

// File: loop/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package loop implements the hosting poll-mode event loop: a set of
// thread-slots, each owning an exclusive lock, a descriptor-indexed
// handle table, a poll backend (epoll on Linux), a posted-task queue
// and a periodic-tick list.
//
// Descriptors are sharded to exactly one slot for their lifetime, so a
// descriptor's readiness and its handle are never touched by two
// service goroutines at once. Mutations from outside the owning
// service goroutine take the slot lock for their full critical
// section.
package loop

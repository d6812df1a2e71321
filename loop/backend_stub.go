//go:build !linux
// +build !linux

// File: loop/backend_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback for platforms without an implemented poll backend. Tests
// run everywhere through the fake backend; production use needs Linux.

package loop

import "github.com/momentics/hioload-bus/api"

// DefaultBackendFactory returns the platform backend constructor.
func DefaultBackendFactory() BackendFactory {
	return func() (Backend, error) {
		return nil, api.ErrNotSupported
	}
}

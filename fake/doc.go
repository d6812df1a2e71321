// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package fake provides test doubles for the bus library surface and
// the poll backend, so the bridge is unit-testable without a real bus
// binding or epoll facility.
package fake

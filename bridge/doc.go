// File: bridge/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package bridge plumbs a callback-driven message-bus client library
// onto the loop package's poll-mode event loop.
//
// The bus library never reports when a descriptor it owns is opened or
// closed. It only asks to watch a descriptor for readability and/or
// writability (possibly as two separate watch tokens for the same
// descriptor) and to arm coarse timers. The bridge therefore creates a
// lightweight "shadow" handle for any descriptor that has a watch
// active, and destroys it when the last watch goes away, since that is
// indistinguishable from the bus library's close path. If the
// descriptor actually stays alive and a watch comes back later, a new
// shadow handle is created. This loss-of-all-watches rule is a
// heuristic, the only close signal available; ports to bus libraries
// with different watch discipline must revisit it.
package bridge

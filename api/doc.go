// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the contracts between the three parties of the
// bridge: the message-bus client library (watch and timeout tokens,
// connection and server objects), the hosting poll-mode event loop
// (descriptor registration, interest masks, readiness flags), and the
// bridge core that plumbs one onto the other.
//
// The bus library never reports descriptor open/close directly. It only
// asks to watch a descriptor for readability and/or writability, and to
// arm timers. Everything in this package is expressed in those terms.
package api

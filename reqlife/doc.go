// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package reqlife implements the pair of cooperating per-request state
// machines that drive a single request inside an asynchronous HTTP client.
//
// [ConnState] (the connection-side state machine) tracks a request as seen
// from the socket: writability, request body framing, response parsing,
// idle-read timeouts. [BagState] (the bag-side state machine) tracks the
// same request as seen from the owning task: queueing, upload backpressure
// through one-shot acknowledgements, download buffering and consumer pull,
// redirect interception, and cancellation.
//
// The two machines never share memory. Each public method mutates its
// receiver in place and returns an action value describing what its caller
// should do next — write bytes, forward a chunk to a delegate, resume a
// paused producer, and so on. Actions from one machine are, in turn, fed
// into methods on the other by the code that owns both (the executor). This
// package itself never performs I/O and depends on no transport,
// serialization or auth package; its only imports outside the standard
// library are the in-tree internal/trace and internal/godebug helpers.
package reqlife

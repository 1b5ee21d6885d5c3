// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

import (
	"errors"
	"fmt"

	"github.com/adtrevor/asynchttp/internal/godebug"
)

// The error surface the two state machines can report to their callers.
// Every error a machine raises on its own is one of these, never a
// machine-internal type; terminal actions produced by
// [ConnState.ErrorHappened] or [BagState.Fail] carry whatever error the
// caller passed in.
var (
	// ErrCancelled indicates the owner cancelled the request explicitly.
	ErrCancelled = errors.New("reqlife: request cancelled")

	// ErrRemoteConnectionClosed indicates the channel went away unexpectedly.
	ErrRemoteConnectionClosed = errors.New("reqlife: remote connection closed")

	// ErrReadTimeout indicates no response activity arrived before the
	// idle-read deadline, once the request has been fully sent.
	ErrReadTimeout = errors.New("reqlife: idle read timeout")

	// ErrBodyLengthMismatch indicates the bytes actually streamed for a
	// fixed-length request body did not match the declared length.
	ErrBodyLengthMismatch = errors.New("reqlife: request body length mismatch")

	// ErrWriteAfterRequestSent indicates the producer tried to write to a
	// request body stream that had already been finished.
	ErrWriteAfterRequestSent = errors.New("reqlife: write after request stream finished")

	// ErrRequestStreamCancelled indicates a soft failure of a single
	// pending write (not the whole task) because the stream is no longer
	// being consumed — e.g. after a redirect or after the task settled.
	ErrRequestStreamCancelled = errors.New("reqlife: request stream cancelled")

	// ErrConnectTimeout indicates the transport never reached a usable
	// channel in time. The core never raises this itself — it is part of
	// the declared surface so callers of [ConnState.ErrorHappened] and
	// [BagState.Fail] have a name for it.
	ErrConnectTimeout = errors.New("reqlife: connect timeout")
)

// UnsupportedProtocolError reports that the remote end negotiated an
// application protocol the client does not support (e.g. during ALPN).
// It is carried as data, so — unlike the sentinels above — it is a typed
// error rather than a fixed value.
type UnsupportedProtocolError struct {
	Name string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("reqlife: server offered unsupported application protocol %q", e.Name)
}

// preconditionViolation panics to signal a programmer error: a public
// entry point was called in a state where the caller's own contract
// (not the remote peer, not the user) has been broken. These are never
// runtime-recoverable by default, per the state machines' error handling
// design. A harness that wants to survive one instead of crashing (e.g.
// a fuzzer exploring call sequences it expects to be invalid) can set
// ASYNCHTTPGODEBUG=strictpreconditions=0 to turn this into a no-op; the
// caller's own fallback return value then stands.
func preconditionViolation(op, detail string) {
	if godebug.Value("strictpreconditions") == "0" {
		return
	}
	panic(fmt.Sprintf("reqlife: precondition violation in %s: %s", op, detail))
}

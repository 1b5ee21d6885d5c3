// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package trace records the sequence of actions a [reqlife.ConnState] or
// [reqlife.BagState] returns, for diagnosing a stuck request after the
// fact. It is off by default; enable it with
// ASYNCHTTPGODEBUG=tracestates=1, the same switch style the godebug
// package uses everywhere else in this module.
package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/adtrevor/asynchttp/internal/godebug"
)

// Enabled reports whether action tracing is turned on.
func Enabled() bool {
	return godebug.Value("tracestates") == "1"
}

// Entry is one recorded transition.
type Entry struct {
	Time   time.Time `json:"time"`
	Method string    `json:"method"`
	Action string    `json:"action"`
}

// Recorder accumulates entries for a single request's lifetime. A nil
// *Recorder is valid and discards everything, so callers can construct
// one unconditionally and only pay for allocation when tracing is on.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns a Recorder, or nil if tracing is disabled.
func New() *Recorder {
	if !Enabled() {
		return nil
	}
	return &Recorder{}
}

// Record appends one transition. It is a no-op on a nil Recorder.
func (r *Recorder) Record(method string, action any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Time:   time.Now(),
		Method: method,
		Action: fmt.Sprintf("%T", action),
	})
}

// MarshalJSON renders the recorded entries, using segmentio/encoding's
// drop-in json.Marshal for faster encoding of a format that can grow
// into the hundreds of entries for a long-lived streaming request.
func (r *Recorder) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(r.entries)
}

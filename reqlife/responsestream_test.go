// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResponseStreamSubBackpressure(t *testing.T) {
	s := newResponseStreamSub()

	if got := s.read(); !cmp.Equal(got, Action(Read{})) {
		t.Errorf("read() on empty sub = %#v, want Read{}", got)
	}

	s.receivedBodyPart(BodyPart{Data: []byte("a")})
	s.receivedBodyPart(BodyPart{Data: []byte("b")})

	batch, ok := s.channelReadComplete()
	if !ok || len(batch) != 2 {
		t.Fatalf("channelReadComplete() = (%v, %v), want 2 parts, true", batch, ok)
	}

	// Draining set waiting; the channel must withhold Read until the
	// consumer re-demands.
	if got := s.read(); !cmp.Equal(got, Action(Wait{})) {
		t.Errorf("read() while waiting = %#v, want Wait{}", got)
	}

	if got := s.demandMoreResponseBodyParts(); !cmp.Equal(got, Action(Read{})) {
		t.Errorf("demandMoreResponseBodyParts() = %#v, want Read{}", got)
	}
}

func TestResponseStreamSubChannelReadCompleteEmpty(t *testing.T) {
	s := newResponseStreamSub()
	if _, ok := s.channelReadComplete(); ok {
		t.Error("channelReadComplete() on empty sub returned ok=true")
	}
}

func TestResponseStreamSubEnd(t *testing.T) {
	s := newResponseStreamSub()
	s.receivedBodyPart(BodyPart{Data: []byte("x")})
	remaining := s.end()
	if len(remaining) != 1 {
		t.Fatalf("end() = %v, want 1 part", remaining)
	}
	if more := s.end(); more != nil {
		t.Errorf("second end() = %v, want nil", more)
	}
}

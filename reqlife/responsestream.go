// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

// responseStreamSub is the small FIFO-plus-flag sub-state shared by the
// response-reading half of [ConnState]. It answers three questions: should
// the channel ask for more bytes (read), is there a batch ready to hand
// upward (channelReadComplete), and has the consumer above asked for more
// (demandMoreResponseBodyParts). It is what lets a single response stream
// exert backpressure in two directions at once: upward, by withholding
// Read from the socket, and sideways, by withholding RequestMoreFromExecutor
// from the delegate.
type responseStreamSub struct {
	pending []BodyPart // chunks received off the channel, not yet drained
	waiting bool        // a batch was handed up and not yet re-demanded
}

func newResponseStreamSub() *responseStreamSub {
	return &responseStreamSub{}
}

// receivedBodyPart appends a chunk read off the channel.
func (s *responseStreamSub) receivedBodyPart(part BodyPart) {
	s.pending = append(s.pending, part)
}

// channelReadComplete returns the accumulated batch, if any, and marks the
// sub-state as waiting for the consumer to ask for more before the channel
// should read again. It returns ok=false when there was nothing to drain,
// so the channel can coalesce bursts instead of emitting empty batches.
func (s *responseStreamSub) channelReadComplete() (batch []BodyPart, ok bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	batch, s.pending = s.pending, nil
	s.waiting = true
	return batch, true
}

// read reports whether the channel should issue another socket read.
func (s *responseStreamSub) read() Action {
	if s.waiting {
		return Wait{}
	}
	return Read{}
}

// demandMoreResponseBodyParts mirrors read, but is triggered by the
// consumer above asking for more; it clears the waiting flag first, so a
// consumer catching up always reopens the upward flow.
func (s *responseStreamSub) demandMoreResponseBodyParts() Action {
	s.waiting = false
	return s.read()
}

// end returns whatever remains buffered and tears the sub-state down; the
// caller drops its reference afterward.
func (s *responseStreamSub) end() []BodyPart {
	remaining := s.pending
	s.pending = nil
	return remaining
}

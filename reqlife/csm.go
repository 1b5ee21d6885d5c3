// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

import (
	"sync"

	"github.com/adtrevor/asynchttp/internal/trace"
)

type csmPhase int

const (
	csmInitialized csmPhase = iota
	csmWaitForWritable
	csmRunning
	csmFinished
	csmFailed
)

type producerPhase int

const (
	producerProducing producerPhase = iota
	producerPaused
)

type requestPhase int

const (
	requestStreaming requestPhase = iota
	requestEndSent
)

type responsePhase int

const (
	responseWaitingForHead responsePhase = iota
	responseReceivingBody
	responseEndReceived
)

// ConnState is the connection-side state machine (CSM): it drives one
// request on one channel, from writability through framing, response
// parsing and idle-read timeout. It is single-threaded by contract (see
// package doc) except for the handful of entry points the spec allows a
// second goroutine to call ([ConnState.RequestCancelled],
// [ConnState.ChannelInactive], [ConnState.ErrorHappened]); a mutex guards
// bookkeeping so those calls can never race a same-goroutine transition,
// not to serialize ordinary use.
type ConnState struct {
	mu sync.Mutex

	phase      csmPhase
	isWritable bool

	// Valid only in csmWaitForWritable.
	pendingHead    any
	pendingFraming RequestFraming

	// Valid only in csmRunning.
	reqPhase    requestPhase
	expectedLen *uint64
	sentBytes   uint64
	producer    producerPhase

	respPhase responsePhase
	respHead  *ResponseHead
	sub       *responseStreamSub

	// Valid only in csmFailed.
	err error

	trace *trace.Recorder
}

// NewConnState creates a CSM for a single request attempt. isWritable
// reports whether the channel is writable at creation time.
func NewConnState(isWritable bool) *ConnState {
	return &ConnState{phase: csmInitialized, isWritable: isWritable, trace: trace.New()}
}

// Trace returns the action recorder for this machine, or nil if tracing
// is disabled (see [trace.Enabled]).
func (c *ConnState) Trace() *trace.Recorder {
	return c.trace
}

// Start begins the request. Valid only from the initial state.
func (c *ConnState) Start(head any, framing RequestFraming) (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("Start", action) }()

	if c.phase != csmInitialized {
		preconditionViolation("Start", "not in initialized state")
		return Wait{}
	}

	if c.isWritable {
		return c.beginRunning(framing)
	}
	c.phase = csmWaitForWritable
	c.pendingHead = head
	c.pendingFraming = framing
	return Wait{}
}

// beginRunning performs the shared "move to running and send the head"
// step used by both Start (when already writable) and WritabilityChanged
// (when writability arrives after Start was deferred). Caller holds mu.
func (c *ConnState) beginRunning(framing RequestFraming) Action {
	startBody := framing.hasBody()
	if startBody {
		c.reqPhase = requestStreaming
		c.producer = producerProducing
		if framing.Kind == BodyFixedSize {
			l := framing.Length
			c.expectedLen = &l
		}
	} else {
		c.reqPhase = requestEndSent
	}
	c.phase = csmRunning
	c.respPhase = responseWaitingForHead
	return SendRequestHead{StartBody: startBody}
}

// WritabilityChanged notifies the machine that the channel's writability
// flipped. Repeated calls with the same value are a no-op.
func (c *ConnState) WritabilityChanged(writable bool) (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("WritabilityChanged", action) }()

	if writable == c.isWritable {
		return Wait{}
	}
	c.isWritable = writable

	switch c.phase {
	case csmWaitForWritable:
		if !writable {
			return Wait{}
		}
		framing := c.pendingFraming
		c.pendingHead = nil
		return c.beginRunning(framing)

	case csmRunning:
		if c.reqPhase != requestStreaming {
			return Wait{}
		}
		if !writable {
			if c.producer == producerProducing {
				c.producer = producerPaused
				return PauseRequestBodyStream{}
			}
			return Wait{}
		}
		// non-writable -> writable
		if c.producer != producerPaused {
			return Wait{}
		}
		if c.respHead != nil && c.respHead.redirectOrError() {
			return Wait{}
		}
		c.producer = producerProducing
		return ResumeRequestBodyStream{}

	default:
		return Wait{}
	}
}

// RequestStreamPartReceived accepts the next request body chunk from the
// producer. Valid only while streaming the request body.
func (c *ConnState) RequestStreamPartReceived(part BodyPart) (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("RequestStreamPartReceived", action) }()

	if !(c.phase == csmRunning && c.reqPhase == requestStreaming) {
		preconditionViolation("RequestStreamPartReceived", "not streaming a request body")
		return Wait{}
	}

	if c.respHead != nil && c.respHead.redirectOrError() {
		if c.producer != producerPaused {
			preconditionViolation("RequestStreamPartReceived", "producer should already be paused after a >=300 response")
		}
		return Wait{}
	}

	c.sentBytes += part.Len()
	if c.expectedLen != nil && c.sentBytes > *c.expectedLen {
		return c.fail(ErrBodyLengthMismatch, FinalClose)
	}
	return SendBodyPart{Part: part}
}

// RequestStreamFinished signals that the producer has no more body bytes.
// Valid only while streaming the request body.
func (c *ConnState) RequestStreamFinished() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("RequestStreamFinished", action) }()

	if !(c.phase == csmRunning && c.reqPhase == requestStreaming) {
		preconditionViolation("RequestStreamFinished", "not streaming a request body")
		return Wait{}
	}

	if c.expectedLen != nil && c.sentBytes != *c.expectedLen {
		return c.fail(ErrBodyLengthMismatch, FinalClose)
	}

	if c.respPhase == responseEndReceived {
		c.phase = csmFinished
		return SucceedRequest{Final: FinalSendRequestEnd}
	}
	c.reqPhase = requestEndSent
	return SendRequestEnd{}
}

// ChannelRead delivers one event read off the channel: a response head, a
// response body chunk, or end-of-response.
func (c *ConnState) ChannelRead(evt ChannelEvent) (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("ChannelRead", action) }()

	switch e := evt.(type) {
	case HeadEvent:
		return c.channelReadHead(e.Head)
	case BodyEvent:
		return c.channelReadBody(e.Part)
	case EndEvent:
		return c.channelReadEnd()
	default:
		preconditionViolation("ChannelRead", "unknown channel event")
		return Wait{}
	}
}

func (c *ConnState) channelReadHead(head ResponseHead) Action {
	if c.phase != csmRunning {
		preconditionViolation("ChannelRead(Head)", "not running")
		return Wait{}
	}
	if head.informational() {
		return Wait{}
	}

	c.respPhase = responseReceivingBody
	c.respHead = &head
	c.sub = newResponseStreamSub()

	if head.successClass() {
		return ForwardResponseHead{Head: head, PauseRequestBodyStream: false}
	}

	// head.redirectOrError(): the head->=300 rule short-circuits the upload.
	if c.reqPhase == requestStreaming && c.producer == producerProducing {
		c.producer = producerPaused
		return ForwardResponseHead{Head: head, PauseRequestBodyStream: true}
	}
	return ForwardResponseHead{Head: head, PauseRequestBodyStream: false}
}

func (c *ConnState) channelReadBody(part BodyPart) Action {
	if !(c.phase == csmRunning && c.respPhase == responseReceivingBody) {
		preconditionViolation("ChannelRead(Body)", "not receiving a response body")
		return Wait{}
	}
	c.sub.receivedBodyPart(part)
	return Wait{}
}

func (c *ConnState) channelReadEnd() Action {
	if c.phase != csmRunning {
		preconditionViolation("ChannelRead(End)", "not running")
		return Wait{}
	}

	switch {
	case c.respHead != nil && c.respHead.successClass():
		remaining := c.sub.end()
		c.sub = nil
		c.respPhase = responseEndReceived
		if c.reqPhase == requestEndSent {
			c.phase = csmFinished
			return SucceedRequest{Final: FinalNone, Trailing: remaining}
		}
		return ForwardResponseBodyParts{Parts: remaining}

	case c.respHead != nil && c.respHead.redirectOrError():
		remaining := c.sub.end()
		c.sub = nil
		c.phase = csmFinished
		return SucceedRequest{Final: FinalClose, Trailing: remaining}

	case c.reqPhase == requestEndSent:
		c.phase = csmFinished
		return SucceedRequest{Final: FinalNone}

	default:
		preconditionViolation("ChannelRead(End)", "end reached with no response head and request not finished")
		return Wait{}
	}
}

// ChannelReadComplete asks whether a batch of response body chunks has
// accumulated and should be handed to the bag-side state machine.
func (c *ConnState) ChannelReadComplete() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("ChannelReadComplete", action) }()

	if c.phase == csmRunning && c.respPhase == responseReceivingBody {
		if batch, ok := c.sub.channelReadComplete(); ok {
			return ForwardResponseBodyParts{Parts: batch}
		}
	}
	return Wait{}
}

// Read asks whether the channel should issue another socket read.
func (c *ConnState) Read() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("Read", action) }()

	if c.phase == csmRunning && c.respPhase == responseReceivingBody {
		return c.sub.read()
	}
	return Read{}
}

// DemandMoreResponseBodyParts is the consumer-pull entry point from above.
func (c *ConnState) DemandMoreResponseBodyParts() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("DemandMoreResponseBodyParts", action) }()

	if c.phase == csmRunning && c.respPhase == responseReceivingBody {
		return c.sub.demandMoreResponseBodyParts()
	}
	return Wait{}
}

// IdleReadTimeoutTriggered fails the request with a read timeout. Valid
// only once the request has been fully sent.
func (c *ConnState) IdleReadTimeoutTriggered() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("IdleReadTimeoutTriggered", action) }()

	if !(c.phase == csmRunning && c.reqPhase == requestEndSent) {
		preconditionViolation("IdleReadTimeoutTriggered", "reachable only after the request end has been sent")
		return Wait{}
	}
	return c.fail(ErrReadTimeout, FinalClose)
}

// RequestCancelled fails the request due to owner-initiated cancellation.
// May be called from a different goroutine than the rest of the machine.
func (c *ConnState) RequestCancelled() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("RequestCancelled", action) }()
	return c.terminalFailure(ErrCancelled)
}

// ChannelInactive fails the request because the channel went away. May be
// called from a different goroutine than the rest of the machine.
func (c *ConnState) ChannelInactive() (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("ChannelInactive", action) }()
	return c.terminalFailure(ErrRemoteConnectionClosed)
}

// ErrorHappened fails the request with an arbitrary transport error. May
// be called from a different goroutine than the rest of the machine.
func (c *ConnState) ErrorHappened(err error) (action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.trace.Record("ErrorHappened", action) }()
	return c.terminalFailure(err)
}

// terminalFailure implements the shared tail of RequestCancelled,
// ChannelInactive and ErrorHappened: terminal states absorb the event
// silently, and the FinalStreamAction depends on whether the request head
// was ever written. Caller holds mu.
func (c *ConnState) terminalFailure(err error) Action {
	if c.phase == csmFinished || c.phase == csmFailed {
		return Wait{}
	}
	final := FinalClose
	if c.phase == csmInitialized || c.phase == csmWaitForWritable {
		final = FinalNone
	}
	return c.fail(err, final)
}

// fail performs the shared "enter failed, record the error" step. Caller
// holds mu.
func (c *ConnState) fail(err error, final FinalStreamAction) Action {
	c.phase = csmFailed
	c.err = err
	return FailRequest{Err: err, Final: final}
}

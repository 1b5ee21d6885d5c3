// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

import (
	"sync"

	"github.com/adtrevor/asynchttp/internal/trace"
)

type bsmPhase int

const (
	bsmInitialized bsmPhase = iota
	bsmQueued
	bsmExecuting
	bsmRedirected
	bsmFinished
)

// reqStreamPhase is the request-body half of an executing BSM: the
// upload side, driven by the producer above and the executor below.
type reqStreamPhase int

const (
	reqStreamInitialized reqStreamPhase = iota
	reqStreamProducing
	reqStreamPaused
	reqStreamFinished
)

// respNext is the flag half of the response-body FIFO: what should
// happen once the buffered chunks are drained.
type respNext int

const (
	nextAskExecutorForMore respNext = iota
	nextEOF
	nextErr
)

// respStreamPhase is the response-body half of an executing BSM: the
// download side, driven by the CSM below and the consumer above.
type respStreamPhase int

const (
	respStreamInitialized respStreamPhase = iota
	respStreamBuffering
	respStreamWaitingForRemote
)

// BagState is the bag-side state machine (BSM): it owns one request from
// the caller's point of view, independent of which channel eventually
// carries it. It tracks queueing, upload backpressure via one-shot
// acknowledgements, download buffering and consumer pull, redirect
// interception, and the handful of races the scheduler and the executor
// can produce around it (a late WillExecuteRequest arriving after
// cancellation, a consumer error racing a transport error).
type BagState struct {
	mu sync.Mutex

	phase     bsmPhase
	scheduler Scheduler
	executor  Executor
	redirect  RedirectPredicate

	reqPhase  reqStreamPhase
	pausedAck *CompletionHandle // set only while reqPhase == reqStreamPaused

	respPhase respStreamPhase
	fifo      []BodyPart
	next      respNext
	nextErr   error

	redirectHead   ResponseHead
	redirectTarget string

	failed bool // first-error-wins latch; true once err is set
	err    error

	trace *trace.Recorder
}

// NewBagState creates a BSM not yet handed to a scheduler. redirect may
// be nil, meaning no response is ever intercepted as a redirect.
func NewBagState(redirect RedirectPredicate) *BagState {
	return &BagState{phase: bsmInitialized, redirect: redirect, trace: trace.New()}
}

// Trace returns the action recorder for this machine, or nil if tracing
// is disabled (see [trace.Enabled]).
func (b *BagState) Trace() *trace.Recorder {
	return b.trace
}

// RequestWasQueued notes that scheduler has accepted the request.
// WillExecuteRequest may race this call (the I6 late-queue race): any
// state past bsmInitialized means this call lost the race and is a
// no-op.
func (b *BagState) RequestWasQueued(scheduler Scheduler) (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("RequestWasQueued", action) }()

	if b.phase != bsmInitialized {
		return BSMWait{}
	}
	b.phase = bsmQueued
	b.scheduler = scheduler
	return BSMWait{}
}

// WillExecuteRequest hands the BSM an executor: the scheduler has
// assigned a channel and the request is about to start. If the request
// was already cancelled while queued, this reports false so the caller
// cancels the executor it just acquired instead of starting it, rather
// than resurrecting a dead request.
func (b *BagState) WillExecuteRequest(executor Executor) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case bsmInitialized, bsmQueued:
		b.phase = bsmExecuting
		b.executor = executor
		b.reqPhase = reqStreamInitialized
		b.respPhase = respStreamInitialized
		return true
	case bsmFinished:
		if b.failed {
			return false
		}
		preconditionViolation("WillExecuteRequest", "request already finished successfully")
		return false
	default:
		preconditionViolation("WillExecuteRequest", "unreachable phase")
		return false
	}
}

// ResumeRequestBodyStream asks the BSM to resume pulling from the
// producer, returning the action the caller must perform to actually
// unblock it.
func (b *BagState) ResumeRequestBodyStream() (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("ResumeRequestBodyStream", action) }()

	if b.phase != bsmExecuting {
		return BSMWait{}
	}

	switch b.reqPhase {
	case reqStreamInitialized:
		b.reqPhase = reqStreamProducing
		return StartWriter{}
	case reqStreamPaused:
		ack := b.pausedAck
		b.pausedAck = nil
		b.reqPhase = reqStreamProducing
		if ack != nil {
			return SucceedAck{Ack: ack}
		}
		return BSMWait{}
	default:
		// Already producing, or the stream already finished: nothing to do.
		return BSMWait{}
	}
}

// PauseRequestBodyStream asks the BSM to stop pulling from the producer.
func (b *BagState) PauseRequestBodyStream() (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("PauseRequestBodyStream", action) }()

	if b.phase != bsmExecuting || b.reqPhase != reqStreamProducing {
		return BSMWait{}
	}
	b.reqPhase = reqStreamPaused
	b.pausedAck = nil
	return PauseProducer{}
}

// WriteNextRequestPart accepts one request body chunk from the producer
// above. The returned ack must be fulfilled before the producer's next
// write, giving the caller upload backpressure even when the executor
// itself has no flow control of its own.
func (b *BagState) WriteNextRequestPart(part BodyPart) (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("WriteNextRequestPart", action) }()

	if b.phase == bsmRedirected {
		return FailWriteFuture{Err: ErrRequestStreamCancelled}
	}
	if b.phase == bsmFinished {
		return FailWriteFuture{Err: ErrRequestStreamCancelled}
	}
	if b.phase != bsmExecuting {
		preconditionViolation("WriteNextRequestPart", "not executing")
		return FailWriteFuture{Err: ErrRequestStreamCancelled}
	}
	if b.reqPhase == reqStreamFinished {
		b.failTaskLocked(ErrWriteAfterRequestSent)
		return FailWriteTask{Err: ErrWriteAfterRequestSent}
	}

	if b.reqPhase == reqStreamPaused {
		ack := b.pausedAck
		if ack == nil {
			ack = NewCompletionHandle()
			b.pausedAck = ack
		}
		return WriteRequestPart{Part: part, Executor: b.executor, Ack: ack}
	}
	b.reqPhase = reqStreamProducing
	return WriteRequestPart{Part: part, Executor: b.executor, Ack: completedAck()}
}

// FinishRequestBodyStream signals that the producer has no more request
// body chunks, or that the producer itself failed with err.
func (b *BagState) FinishRequestBodyStream(err error) (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("FinishRequestBodyStream", action) }()

	if b.phase != bsmExecuting {
		return BSMWait{}
	}
	ack := b.pausedAck
	b.pausedAck = nil
	b.reqPhase = reqStreamFinished

	if err != nil {
		exec := b.executor
		b.failTaskLocked(err)
		return ForwardStreamFailureAndFailTask{Executor: exec, Err: err, Ack: ack}
	}
	return ForwardStreamFinished{Executor: b.executor, Ack: ack}
}

// ReceiveResponseHead delivers a response head read off the channel. If
// the redirect predicate claims it, the request is handed back to the
// caller to be re-queued at a new target instead of reaching the
// delegate, and ok reports false. Otherwise the response-body FIFO is
// initialized and ok reports true.
func (b *BagState) ReceiveResponseHead(head ResponseHead) (action BSMAction, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("ReceiveResponseHead", action) }()

	if b.phase != bsmExecuting {
		preconditionViolation("ReceiveResponseHead", "not executing")
		return BSMWait{}, false
	}

	if b.redirect != nil {
		if target, accepted := b.redirect(head); accepted {
			b.phase = bsmRedirected
			b.redirectHead = head
			b.redirectTarget = target
			return BSMWait{}, false
		}
	}
	b.respPhase = respStreamBuffering
	b.next = nextAskExecutorForMore
	return DeliverResponseHead{Head: head}, true
}

// ReceiveResponseBodyParts delivers a batch of response body chunks read
// off the channel. If the consumer is already waiting on
// [BagState.ConsumeMoreBodyData], the first chunk is returned for
// immediate delivery and the rest buffered; otherwise every chunk is
// buffered and nil is returned.
func (b *BagState) ReceiveResponseBodyParts(parts []BodyPart) (first *BodyPart, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase != bsmExecuting || len(parts) == 0 {
		return nil, false
	}

	if b.respPhase == respStreamWaitingForRemote {
		head, rest := parts[0], parts[1:]
		b.fifo = append(b.fifo, rest...)
		b.respPhase = respStreamBuffering
		b.next = nextAskExecutorForMore
		return &head, true
	}
	b.fifo = append(b.fifo, parts...)
	return nil, false
}

// SucceedRequest flushes any trailing response bytes the CSM handed back
// with its terminal action, then moves the BSM to its own terminal
// state (immediately, if nothing is left to drain, or lazily once
// [BagState.ConsumeMoreBodyData] walks the FIFO to the end).
func (b *BagState) SucceedRequest(finalChunks []BodyPart) (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("SucceedRequest", action) }()

	if b.phase == bsmRedirected {
		b.phase = bsmFinished
		return FollowRedirect{Head: b.redirectHead, Target: b.redirectTarget}
	}
	if b.phase != bsmExecuting {
		preconditionViolation("SucceedRequest", "not executing or redirected")
		return BSMWait{}
	}

	if len(b.fifo) == 0 && len(finalChunks) == 0 {
		b.phase = bsmFinished
		return SucceedDelegate{}
	}

	if b.respPhase == respStreamWaitingForRemote {
		all := append(b.fifo, finalChunks...)
		b.fifo = nil
		head, rest := all[0], all[1:]
		b.fifo = rest
		b.respPhase = respStreamBuffering
		b.next = nextEOF
		return ConsumeChunk{Part: head}
	}

	b.fifo = append(b.fifo, finalChunks...)
	b.next = nextEOF
	return BSMWait{}
}

// ConsumeMoreBodyData is the consumer's pull signal: it reports the
// outcome of the chunk it was just handed (nil on success) and asks for
// the next one.
func (b *BagState) ConsumeMoreBodyData(prevErr error) (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("ConsumeMoreBodyData", action) }()

	if prevErr != nil {
		return b.failWithConsumptionError(prevErr)
	}
	if b.phase != bsmExecuting {
		preconditionViolation("ConsumeMoreBodyData", "not executing")
		return BSMWait{}
	}

	if len(b.fifo) > 0 {
		chunk := b.fifo[0]
		b.fifo = b.fifo[1:]
		return ConsumeChunk{Part: chunk}
	}

	switch b.next {
	case nextAskExecutorForMore:
		b.respPhase = respStreamWaitingForRemote
		return RequestMoreFromExecutor{Executor: b.executor}
	case nextEOF:
		b.phase = bsmFinished
		return FinishStream{}
	case nextErr:
		err := b.nextErr
		b.phase = bsmFinished
		b.failed = true
		b.err = err
		return FailConsumeTask{Err: err}
	default:
		preconditionViolation("ConsumeMoreBodyData", "unknown next-step flag")
		return BSMWait{}
	}
}

// Fail is the universal cancellation entry point, reachable both from a
// transport error surfaced by the CSM and from owner-initiated
// cancellation. First error wins: once failed, a later call is silently
// absorbed instead of overwriting the recorded error, so a consumer
// error racing a transport error cannot flap the delegate's terminal
// outcome back and forth.
func (b *BagState) Fail(err error) (action BSMAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { b.trace.Record("Fail", action) }()

	if b.phase == bsmFinished {
		return BSMWait{}
	}

	switch b.phase {
	case bsmInitialized:
		b.failTaskLocked(err)
		return FailTask{Err: err}
	case bsmQueued:
		sched := b.scheduler
		b.failTaskLocked(err)
		return FailTask{Err: err, Scheduler: sched}
	case bsmRedirected:
		b.failTaskLocked(err)
		return FailTask{Err: err}
	case bsmExecuting:
		switch {
		case b.respPhase == respStreamBuffering && b.next == nextEOF:
			// The drain is already in flight; preserve the eof outcome as
			// an error so the consumer sees it once the FIFO empties, but
			// do not flip phase yet — ConsumeMoreBodyData finishes the
			// job. The executor is already dead from the remote's point
			// of view, but cancel it anyway to release any resources.
			b.next = nextErr
			b.nextErr = err
			exec := b.executor
			return CancelExecutingRequest{Executor: exec}
		case b.respPhase == respStreamBuffering && b.next == nextErr:
			// An error already latched; this Fail did not happen first,
			// so it changes nothing about what the consumer will see.
			return CancelExecutingRequest{Executor: b.executor}
		default:
			exec := b.executor
			b.failTaskLocked(err)
			return FailTask{Err: err, Executor: exec}
		}
	default:
		preconditionViolation("Fail", "unknown phase")
		return BSMWait{}
	}
}

// failWithConsumptionError implements the first-error-wins policy for a
// consumer-reported error racing a connection error that arrived first:
// if the buffered next-step already carries a connection error, that
// error wins (it happened first) and the executor is not re-cancelled
// (it is already dead); otherwise the consumer's error fails the task
// and the executor is cancelled.
func (b *BagState) failWithConsumptionError(consumerErr error) BSMAction {
	if b.respPhase == respStreamWaitingForRemote {
		// The design leaves this unreached: a consumer cannot report a
		// result for a chunk it was never handed. See the Open Question
		// in the design notes before relaxing this assertion.
		preconditionViolation("failWithConsumptionError", "consumer reported an error while waiting on the remote end")
	}

	if b.next == nextErr {
		err := b.nextErr
		b.phase = bsmFinished
		b.failed = true
		b.err = err
		return FailConsumeTask{Err: err}
	}

	exec := b.executor
	b.phase = bsmFinished
	b.failed = true
	b.err = consumerErr
	return FailConsumeTaskAndCancelExecutor{Executor: exec, Err: consumerErr}
}

// failTaskLocked records the first error and marks the BSM finished.
// Caller holds mu.
func (b *BagState) failTaskLocked(err error) {
	if !b.failed {
		b.failed = true
		b.err = err
	}
	b.phase = bsmFinished
}

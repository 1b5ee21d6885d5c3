// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

// BSMAction is returned by every [BagState] method: it tells the bag
// owner what to do next with the executor, the scheduler or the
// delegate. Like [Action], the interface is closed over the variants in
// this file by an unexported marker method.
type BSMAction interface {
	isBSMAction()
}

// BSMWait means there is nothing for the caller to do right now.
type BSMWait struct{}

// StartWriter is the ResumeAction for the first resume of a request body
// stream: the caller should start pulling chunks from the producer for
// the first time.
type StartWriter struct{}

// SucceedAck is the ResumeAction for a resume after the first when a
// write made during the pause is parked on Ack: the caller must fulfill
// Ack so the producer may proceed. A resume with no parked write returns
// [BSMWait] instead.
type SucceedAck struct {
	Ack *CompletionHandle
}

// WriteRequestPart is the WriteAction asking the caller to push one
// request body chunk onto Executor and let the producer await Ack
// before sending the next one. Ack is already resolved when the
// producer is not currently paused, or a fresh/reused pending handle
// when it is (the producer's next write call will block on it).
type WriteRequestPart struct {
	Part     BodyPart
	Executor Executor
	Ack      *CompletionHandle
}

// FailWriteFuture is the WriteAction for a soft write failure: only the
// producer's pending write should observe Err (e.g. after a redirect or
// once the task has already settled); the task itself is not failed.
type FailWriteFuture struct {
	Err error
}

// FailWriteTask is the WriteAction for writing after the request body
// stream already finished: a framing violation that fails the whole
// task, not just this write.
type FailWriteTask struct {
	Err error
}

// ForwardStreamFinished asks the caller to signal end-of-body on
// Executor and, if Ack is non-nil, fulfill it so a producer paused on
// the final chunk is released.
type ForwardStreamFinished struct {
	Executor Executor
	Ack      *CompletionHandle
}

// ForwardStreamFailureAndFailTask asks the caller to cancel Executor,
// fail Ack (if non-nil) with Err, and fail the whole task with Err.
type ForwardStreamFailureAndFailTask struct {
	Executor Executor
	Err      error
	Ack      *CompletionHandle
}

// PauseProducer asks the caller to stop pulling request body chunks from
// the producer above.
type PauseProducer struct{}

// DeliverResponseHead asks the caller to forward a response head to the
// delegate.
type DeliverResponseHead struct {
	Head ResponseHead
}

// ConsumeChunk asks the caller to deliver one response body chunk to the
// consumer immediately (as opposed to buffering it for a later pull).
type ConsumeChunk struct {
	Part BodyPart
}

// RequestMoreFromExecutor asks the caller to pull another response body
// chunk from Executor (sideways backpressure toward the server).
type RequestMoreFromExecutor struct {
	Executor Executor
}

// FinishStream is returned by [BagState.ConsumeMoreBodyData] once the
// buffered FIFO has drained past end-of-body: the task succeeded and the
// delegate should be told so.
type FinishStream struct{}

// FailConsumeTask is returned by [BagState.ConsumeMoreBodyData] when the
// buffered next-step was itself an error: the task fails with Err. No
// executor needs cancelling — the remote end already finished speaking.
type FailConsumeTask struct {
	Err error
}

// FailConsumeTaskAndCancelExecutor is returned when the consumer reports
// an error for the chunk it was just handed while the executor is still
// live: the task fails with Err and Executor must be cancelled.
type FailConsumeTaskAndCancelExecutor struct {
	Executor Executor
	Err      error
}

// FollowRedirect asks the caller to re-queue the request at Target
// instead of delivering the response to the delegate.
type FollowRedirect struct {
	Head   ResponseHead
	Target string
}

// CancelExecutingRequest asks the caller to abort the request on
// Executor, without yet failing the whole task: the remote end's error
// outcome is latched and will surface once [BagState.ConsumeMoreBodyData]
// finishes draining the FIFO already in flight.
type CancelExecutingRequest struct {
	Executor Executor
}

// SucceedDelegate is the terminal success action: nothing was buffered,
// so the delegate can be told immediately.
type SucceedDelegate struct{}

// FailTask is the universal cancellation action returned by
// [BagState.Fail]: the delegate must be told Err failed the request, and
// Scheduler/Executor (whichever is non-nil) must have the request
// removed or aborted.
type FailTask struct {
	Err       error
	Scheduler Scheduler
	Executor  Executor
}

func (BSMWait) isBSMAction()                        {}
func (StartWriter) isBSMAction()                     {}
func (SucceedAck) isBSMAction()                      {}
func (WriteRequestPart) isBSMAction()                {}
func (FailWriteFuture) isBSMAction()                 {}
func (FailWriteTask) isBSMAction()                   {}
func (ForwardStreamFinished) isBSMAction()           {}
func (ForwardStreamFailureAndFailTask) isBSMAction() {}
func (PauseProducer) isBSMAction()                   {}
func (DeliverResponseHead) isBSMAction()             {}
func (ConsumeChunk) isBSMAction()                    {}
func (RequestMoreFromExecutor) isBSMAction()         {}
func (FinishStream) isBSMAction()                    {}
func (FailConsumeTask) isBSMAction()                 {}
func (FailConsumeTaskAndCancelExecutor) isBSMAction() {}
func (FollowRedirect) isBSMAction()                  {}
func (CancelExecutingRequest) isBSMAction()          {}
func (SucceedDelegate) isBSMAction()                 {}
func (FailTask) isBSMAction()                        {}

// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqlife

import "context"

// Executor is the capability an owning task uses to push bytes onto, and
// pull bytes off, an already-established request. The state machines never
// call these methods themselves — they hand back an Executor reference
// inside an action, and it is the caller's job to invoke it. Modeled as an
// identifier-shaped interface rather than a strongly-owning back-pointer,
// per the design note on cyclic references: a machine holds at most a
// reference to one. [BagState] does not clear that reference when it
// reaches a terminal state; it is released only with the BagState itself.
type Executor interface {
	// WriteRequestBodyPart writes one request body chunk. The caller is
	// responsible for resolving the accompanying completion handle once
	// the write (and any flow-control wait) completes.
	WriteRequestBodyPart(ctx context.Context, part BodyPart) error

	// FinishRequestBodyStream signals that no more request body chunks
	// follow.
	FinishRequestBodyStream(ctx context.Context) error

	// DemandResponseBodyStream asks the executor for another response
	// body chunk (sideways backpressure to the delegate).
	DemandResponseBodyStream()

	// CancelRequest aborts the in-flight request.
	CancelRequest()
}

// Scheduler is the capability used to remove a request from a queue
// before it starts executing.
type Scheduler interface {
	// CancelRequest removes the queued request identified by id.
	CancelRequest(id string)
}

// RedirectPredicate decides, from a response head alone, whether the bag
// state machine should intercept the response as a redirect rather than
// forward it to the delegate. It is pure and is consulted at most once per
// response.
type RedirectPredicate func(head ResponseHead) (target string, ok bool)

// Delegate is the user-facing consumer of a request's response. The core
// guarantees exactly one terminal delivery (Succeed or Fail) per request.
type Delegate interface {
	ForwardResponseHead(head ResponseHead)
	ForwardResponseBodyParts(parts []BodyPart)
	Succeed()
	Fail(err error)
}

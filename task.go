// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package asynchttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/adtrevor/asynchttp/executor"
	"github.com/adtrevor/asynchttp/redirect"
	"github.com/adtrevor/asynchttp/reqlife"
)

// Task is one logical request: a [redirect.Policy] that lives across
// every hop a followed redirect adds, and a fresh [reqlife.BagState],
// [reqlife.ConnState] and [executor.HTTPExecutor] for each hop in turn.
// It is the code
// [reqlife/doc.go] calls "the executor" — the owner of both machines
// that feeds the action one returns into a method on the other.
type Task struct {
	id       string
	client   *Client
	delegate reqlife.Delegate
	policy   *redirect.Policy

	mu              sync.Mutex
	bsm             *reqlife.BagState
	csm             *reqlife.ConnState
	idleTimer       *time.Timer
	attemptFinished bool

	pendingRedirect *reqlife.FollowRedirect
}

// run drives req, and every redirect hop it produces, to a terminal
// delegate call. A fresh [reqlife.BagState] is created per hop (the bag
// machine's own redirect transition is terminal, by design — see
// DESIGN.md), sharing the one long-lived [redirect.Policy] so its
// follow-count and MaxRedirects enforcement span the whole chain.
func (t *Task) run(ctx context.Context, req *http.Request, body io.Reader) {
	for {
		redirected, nextReq := t.runAttempt(ctx, req, body)
		if !redirected {
			return
		}
		t.bsm = reqlife.NewBagState(t.policy.Predicate())
		req = nextReq
		body = nil
	}
}

// runAttempt drives one hop: queueing, the connection-side state machine
// for one [executor.HTTPExecutor], and everything the two machines ask
// of this caller in between.
func (t *Task) runAttempt(ctx context.Context, req *http.Request, body io.Reader) (redirected bool, nextReq *http.Request) {
	exec := executor.NewHTTPExecutor(t.client.HTTPClient)

	if t.client.Scheduler != nil {
		t.dispatchBSM(t.bsm.RequestWasQueued(t.client.Scheduler))
		if err := t.client.Scheduler.Admit(ctx, t.id, req.URL.Path); err != nil {
			t.dispatchBSM(t.bsm.Fail(err))
			return false, nil
		}
	}

	if !t.bsm.WillExecuteRequest(exec) {
		exec.CancelRequest()
		return false, nil
	}

	t.mu.Lock()
	t.csm = reqlife.NewConnState(true)
	t.attemptFinished = false
	t.mu.Unlock()
	t.pendingRedirect = nil

	framing := requestFraming(req, body)

	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	var wg sync.WaitGroup
	startAction := t.csm.Start(req, framing)
	if head, ok := startAction.(reqlife.SendRequestHead); ok {
		if head.StartBody {
			req.Body = exec.NewRequestBody()
			if _, ok := t.bsm.ResumeRequestBodyStream().(reqlife.StartWriter); ok {
				wg.Add(1)
				go func() {
					defer wg.Done()
					t.runProducer(attemptCtx, body)
				}()
			}
		} else {
			req.Body = http.NoBody
			t.armIdleTimer(t.idleDuration())
		}
	}

	doErr := exec.Do(attemptCtx, req, t.sink)

	t.mu.Lock()
	t.attemptFinished = true
	t.mu.Unlock()
	cancelAttempt()
	wg.Wait()
	t.disarmIdleTimer()

	if doErr != nil && ctx.Err() == nil {
		t.applyCSMAction(t.csm.ErrorHappened(doErr))
	}

	if t.pendingRedirect != nil {
		if next, ok := t.buildRedirectRequest(req, *t.pendingRedirect); ok {
			return true, next
		}
	}
	return false, nil
}

// Cancel aborts the task from the owner's side. Safe to call
// concurrently with the in-flight attempt, matching
// [reqlife.ConnState.RequestCancelled]'s contract.
func (t *Task) Cancel() {
	t.mu.Lock()
	csm := t.csm
	t.mu.Unlock()
	if csm != nil {
		t.applyCSMAction(csm.RequestCancelled())
	}
}

// sink is the [executor.HTTPExecutor] callback: it drives the
// connection-side state machine from one channel event, then forwards
// whatever that machine asks for into the bag-side state machine.
func (t *Task) sink(evt reqlife.ChannelEvent) {
	t.refreshIdleTimer(t.idleDuration())
	t.applyCSMAction(t.csm.ChannelRead(evt))

	if _, ok := evt.(reqlife.BodyEvent); ok {
		t.applyCSMAction(t.csm.ChannelReadComplete())
	}
}

// applyCSMAction performs the side effect a [reqlife.Action] asks for.
// Actions that only make sense on the upload path (SendRequestHead and
// friends) never arrive here — they are produced by, and handled at,
// the call sites that drive the request body directly.
func (t *Task) applyCSMAction(action reqlife.Action) {
	switch a := action.(type) {
	case reqlife.ForwardResponseHead:
		bsmAction, ok := t.bsm.ReceiveResponseHead(a.Head)
		if ok {
			t.dispatchBSM(bsmAction)
			t.pumpConsumer(nil)
		}
		if a.PauseRequestBodyStream {
			t.bsm.PauseRequestBodyStream()
		}
	case reqlife.ForwardResponseBodyParts:
		if first, ok := t.bsm.ReceiveResponseBodyParts(a.Parts); ok {
			t.delegate.ForwardResponseBodyParts([]reqlife.BodyPart{*first})
			t.pumpConsumer(nil)
		}
	case reqlife.SucceedRequest:
		bsmAction := t.bsm.SucceedRequest(a.Trailing)
		t.dispatchBSM(bsmAction)
		if _, ok := bsmAction.(reqlife.ConsumeChunk); ok {
			// A trailing chunk landed while the consumer was already
			// waiting on the remote end; drain the rest of the FIFO the
			// same way an ordinary mid-stream batch would.
			t.pumpConsumer(nil)
		}
	case reqlife.FailRequest:
		t.dispatchBSM(t.bsm.Fail(a.Err))
	default:
		// Wait and Read: nothing for the caller to do. The reference
		// executor manages its own socket-read loop rather than being
		// driven by Read.
	}
}

// pumpConsumer acts as the task's own, always-eager consumer: it asks
// the bag-side state machine for the next chunk, delivers it, and asks
// again, until the machine itself says there is nothing left to give
// right now.
func (t *Task) pumpConsumer(prevErr error) {
	action := t.bsm.ConsumeMoreBodyData(prevErr)
	for {
		chunk, ok := action.(reqlife.ConsumeChunk)
		if !ok {
			t.dispatchBSM(action)
			return
		}
		t.delegate.ForwardResponseBodyParts([]reqlife.BodyPart{chunk.Part})
		action = t.bsm.ConsumeMoreBodyData(nil)
	}
}

// demandMore forwards the bag-side state machine's sideways backpressure
// request to the channel, via the connection-side state machine's own
// upward gate.
func (t *Task) demandMore(exec reqlife.Executor) {
	if _, ok := t.csm.DemandMoreResponseBodyParts().(reqlife.Read); ok {
		exec.DemandResponseBodyStream()
	}
}

// dispatchBSM performs the side effect a [reqlife.BSMAction] asks for
// that is not already handled by the specific call site that produced
// it (the upload-path actions: StartWriter, SucceedAck, WriteRequestPart,
// FailWriteFuture, FailWriteTask, ForwardStreamFinished,
// ForwardStreamFailureAndFailTask, PauseProducer, and the no-op BSMWait).
func (t *Task) dispatchBSM(action reqlife.BSMAction) {
	switch a := action.(type) {
	case reqlife.DeliverResponseHead:
		t.delegate.ForwardResponseHead(a.Head)
	case reqlife.ConsumeChunk:
		t.delegate.ForwardResponseBodyParts([]reqlife.BodyPart{a.Part})
	case reqlife.RequestMoreFromExecutor:
		t.demandMore(a.Executor)
	case reqlife.FinishStream:
		t.delegate.Succeed()
	case reqlife.FailConsumeTask:
		t.delegate.Fail(a.Err)
	case reqlife.FailConsumeTaskAndCancelExecutor:
		a.Executor.CancelRequest()
		t.delegate.Fail(a.Err)
	case reqlife.FollowRedirect:
		fr := a
		t.pendingRedirect = &fr
	case reqlife.CancelExecutingRequest:
		a.Executor.CancelRequest()
	case reqlife.SucceedDelegate:
		t.delegate.Succeed()
	case reqlife.FailTask:
		if a.Scheduler != nil {
			a.Scheduler.CancelRequest(t.id)
		}
		if a.Executor != nil {
			a.Executor.CancelRequest()
		}
		t.delegate.Fail(a.Err)
	default:
	}
}

// runProducer pulls chunks from body and feeds them through both state
// machines until body is exhausted, fails, or either machine reports
// the stream is no longer wanted.
func (t *Task) runProducer(ctx context.Context, body io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			part := reqlife.BodyPart{Data: append([]byte(nil), buf[:n]...)}
			if err := t.writeRequestPart(ctx, part); err != nil {
				return
			}
		}
		if rerr != nil {
			var finishErr error
			if rerr != io.EOF {
				finishErr = rerr
			}
			t.finishRequestBody(ctx, finishErr)
			return
		}
	}
}

// writeRequestPart asks the bag-side state machine whether part may be
// written, has the connection-side state machine check its framing,
// performs the actual write, and waits on the ack the bag machine hands
// back before the caller pulls the next chunk (the producer's
// backpressure gate while paused).
func (t *Task) writeRequestPart(ctx context.Context, part reqlife.BodyPart) error {
	switch a := t.bsm.WriteNextRequestPart(part).(type) {
	case reqlife.FailWriteFuture:
		return a.Err
	case reqlife.FailWriteTask:
		return a.Err
	case reqlife.WriteRequestPart:
		switch ca := t.csm.RequestStreamPartReceived(a.Part).(type) {
		case reqlife.SendBodyPart:
			if err := a.Executor.WriteRequestBodyPart(ctx, ca.Part); err != nil {
				a.Ack.Fail(err)
				return err
			}
		case reqlife.FailRequest:
			a.Ack.Fail(ca.Err)
			t.dispatchBSM(t.bsm.Fail(ca.Err))
			return ca.Err
		}
		return a.Ack.Wait(ctx)
	default:
		return nil
	}
}

// finishRequestBody signals end-of-body (err == nil) or a producer
// failure (err != nil) to the bag-side state machine, and lets the
// connection-side state machine emit the terminating frame or catch a
// framing violation.
func (t *Task) finishRequestBody(ctx context.Context, err error) {
	switch a := t.bsm.FinishRequestBodyStream(err).(type) {
	case reqlife.ForwardStreamFinished:
		switch ca := t.csm.RequestStreamFinished().(type) {
		case reqlife.SendRequestEnd:
			a.Executor.FinishRequestBodyStream(ctx)
			t.armIdleTimer(t.idleDuration())
		case reqlife.FailRequest:
			t.dispatchBSM(t.bsm.Fail(ca.Err))
		case reqlife.SucceedRequest:
			bsmAction := t.bsm.SucceedRequest(ca.Trailing)
			t.dispatchBSM(bsmAction)
			if _, ok := bsmAction.(reqlife.ConsumeChunk); ok {
				t.pumpConsumer(nil)
			}
		}
		if a.Ack != nil {
			a.Ack.Succeed()
		}
	case reqlife.ForwardStreamFailureAndFailTask:
		a.Executor.CancelRequest()
		if a.Ack != nil {
			a.Ack.Fail(a.Err)
		}
		t.delegate.Fail(a.Err)
	}
}

// buildRedirectRequest constructs the next hop's request from the
// response head the bag-side state machine intercepted, applying the
// net/http method-downgrade rule (303, or 301/302 after a POST, become
// GET) and the redirect package's Authorization policy.
func (t *Task) buildRedirectRequest(prev *http.Request, fr reqlife.FollowRedirect) (*http.Request, bool) {
	target, err := url.Parse(fr.Target)
	if err != nil {
		t.delegate.Fail(fmt.Errorf("asynchttp: invalid redirect target: %w", err))
		return nil, false
	}

	method := prev.Method
	if fr.Head.StatusCode == http.StatusSeeOther ||
		((fr.Head.StatusCode == http.StatusMovedPermanently || fr.Head.StatusCode == http.StatusFound) && prev.Method == http.MethodPost) {
		method = http.MethodGet
	}

	next, err := http.NewRequest(method, target.String(), nil)
	if err != nil {
		t.delegate.Fail(fmt.Errorf("asynchttp: building redirect request: %w", err))
		return nil, false
	}
	next.Header = prev.Header.Clone()

	if t.client.Options.StripAuthorizationOnRedirect && redirect.StripAuthorization(prev.URL, target) {
		bearer := strings.TrimPrefix(next.Header.Get("Authorization"), "Bearer ")
		next.Header.Del("Authorization")
		switch {
		case bearer == "":
		case !redirect.TokenExpired(bearer):
			next.Header.Set("Authorization", "Bearer "+bearer)
		case t.client.Authorizer != nil:
			if tok, err := t.client.Authorizer.BearerToken(context.Background()); err == nil {
				next.Header.Set("Authorization", "Bearer "+tok)
			}
		}
	}

	t.policy.BaseURL = target
	return next, true
}

func (t *Task) idleDuration() time.Duration {
	ms := t.client.Options.IdleReadTimeoutMillis
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (t *Task) armIdleTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
	t.idleTimer = time.AfterFunc(d, t.onIdleTimeout)
}

func (t *Task) refreshIdleTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idleTimer != nil {
		t.idleTimer.Reset(d)
	}
}

func (t *Task) disarmIdleTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
}

func (t *Task) onIdleTimeout() {
	t.mu.Lock()
	done := t.attemptFinished
	t.mu.Unlock()
	if done {
		return
	}
	t.applyCSMAction(t.csm.IdleReadTimeoutTriggered())
}

// requestFraming infers the [reqlife.RequestFraming] a request implies:
// no body, a declared Content-Length, or an undeclared stream.
func requestFraming(req *http.Request, body io.Reader) reqlife.RequestFraming {
	if body == nil {
		return reqlife.RequestFraming{Kind: reqlife.BodyNone}
	}
	if req.ContentLength > 0 {
		return reqlife.RequestFraming{Kind: reqlife.BodyFixedSize, Length: uint64(req.ContentLength)}
	}
	return reqlife.RequestFraming{Kind: reqlife.BodyStream}
}

// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package executor is a reference [reqlife.Executor] built on net/http.
// It drives one request's body upload through an [io.Pipe] and turns the
// response into the [reqlife.ChannelEvent] values a [reqlife.ConnState]
// expects, retrying the initial connection attempt with the same
// exponential-backoff-plus-jitter policy the streaming transport uses
// for its hanging GET.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/adtrevor/asynchttp/reqlife"
)

// responseHeaders adapts [http.Header] to [reqlife.ResponseHead]'s Opaque
// contract, so a redirect policy can read the Location header back out
// without the executor depending on the redirect package.
type responseHeaders http.Header

func (h responseHeaders) Header(name string) string { return http.Header(h).Get(name) }

// HTTPExecutor implements [reqlife.Executor] against a real HTTP
// connection. One HTTPExecutor serves exactly one request; callers
// create a new one per attempt, including per redirect hop.
type HTTPExecutor struct {
	client *http.Client

	maxRetries     int
	initialBackoff time.Duration
	randSource     *rand.Rand

	mu         sync.Mutex
	bodyWriter *io.PipeWriter
	cancel     context.CancelFunc
	demand     chan struct{}
}

// Option configures an HTTPExecutor.
type Option func(*HTTPExecutor)

// WithRetries overrides the default retry budget for the initial
// connection attempt.
func WithRetries(maxRetries int, initialBackoff time.Duration) Option {
	return func(e *HTTPExecutor) {
		e.maxRetries = maxRetries
		e.initialBackoff = initialBackoff
	}
}

// NewHTTPExecutor creates an HTTPExecutor using client, or
// [http.DefaultClient] if nil.
func NewHTTPExecutor(client *http.Client, opts ...Option) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &HTTPExecutor{
		client:         client,
		maxRetries:     2,
		initialBackoff: 100 * time.Millisecond,
		randSource:     rand.New(rand.NewSource(time.Now().UnixNano())),
		demand:         make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Do issues req, retrying the connection attempt itself (not the body
// upload) on a retryable error, and hands events to sink as the response
// arrives. It blocks until the response is fully read, the request is
// cancelled, or ctx is done.
func (e *HTTPExecutor) Do(ctx context.Context, req *http.Request, sink func(reqlife.ChannelEvent)) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		attempts++
		resp, err := e.client.Do(req.WithContext(ctx))
		if err == nil {
			return e.stream(ctx, resp, sink)
		}
		lastErr = err
		if !isRetryable(err) || attempt == e.maxRetries {
			break
		}
		backoff := e.initialBackoff * time.Duration(1<<uint(attempt))
		jitter := time.Duration(e.randSource.Int63n(int64(backoff/2 + 1)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}
	return fmt.Errorf("connect failed after %d attempts: %w", attempts, lastErr)
}

func (e *HTTPExecutor) stream(ctx context.Context, resp *http.Response, sink func(reqlife.ChannelEvent)) error {
	defer resp.Body.Close()

	sink(reqlife.HeadEvent{Head: reqlife.ResponseHead{
		StatusCode: resp.StatusCode,
		Opaque:     responseHeaders(resp.Header),
	}})

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.demand:
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			part := make([]byte, n)
			copy(part, buf[:n])
			sink(reqlife.BodyEvent{Part: reqlife.BodyPart{Data: part}})
		}
		if err == io.EOF {
			sink(reqlife.EndEvent{})
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// WriteRequestBodyPart implements [reqlife.Executor].
func (e *HTTPExecutor) WriteRequestBodyPart(ctx context.Context, part reqlife.BodyPart) error {
	e.mu.Lock()
	w := e.bodyWriter
	e.mu.Unlock()
	if w == nil {
		return fmt.Errorf("executor: write before request body stream was opened")
	}
	_, err := w.Write(part.Data)
	return err
}

// FinishRequestBodyStream implements [reqlife.Executor].
func (e *HTTPExecutor) FinishRequestBodyStream(ctx context.Context) error {
	e.mu.Lock()
	w := e.bodyWriter
	e.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

// DemandResponseBodyStream implements [reqlife.Executor].
func (e *HTTPExecutor) DemandResponseBodyStream() {
	select {
	case e.demand <- struct{}{}:
	default:
	}
}

// CancelRequest implements [reqlife.Executor].
func (e *HTTPExecutor) CancelRequest() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// NewRequestBody returns an [io.ReadCloser] suitable for [http.Request.Body]
// that WriteRequestBodyPart and FinishRequestBodyStream feed into. Callers
// streaming a request body must call this before Do.
func (e *HTTPExecutor) NewRequestBody() io.ReadCloser {
	r, w := io.Pipe()
	e.mu.Lock()
	e.bodyWriter = w
	e.mu.Unlock()
	return r
}

func isRetryable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

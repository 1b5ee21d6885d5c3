// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package scheduler admits queued requests onto channels at a bounded
// rate per route, and lets a bag-side state machine cancel a request
// that is still waiting in line. Route affinity is computed from a URI
// template so that, for instance, all requests to /users/{id} share one
// admission budget regardless of which id they carry.
package scheduler

import (
	"context"
	"sync"

	"github.com/yosida95/uritemplate/v3"
	"golang.org/x/time/rate"
)

// Route binds a URI template to a per-route admission rate. Templates
// are matched in the order they are registered; the first match wins.
type Route struct {
	Template *uritemplate.Template
	// BurstsPerSecond bounds how many requests this route admits per
	// second. Non-positive means unbounded.
	BurstsPerSecond float64
	// Burst is the maximum number of requests admitted back-to-back
	// before the rate limit starts throttling.
	Burst int
}

// Pool admits requests onto channels, one route-scoped [rate.Limiter] at
// a time. It implements [reqlife.Scheduler]: a [reqlife.BagState] holds
// the Pool as its scheduler while the request is queued, and the owner
// cancelling the request supplies the request ID it was admitted with.
type Pool struct {
	mu       sync.Mutex
	routes   []Route
	limiters map[*Route]*rate.Limiter
	pending  map[string]context.CancelFunc
}

// NewPool creates a Pool that admits requests through routes, matched in
// order.
func NewPool(routes []Route) *Pool {
	return &Pool{
		routes:   routes,
		limiters: make(map[*Route]*rate.Limiter, len(routes)),
	}
}

func (p *Pool) limiterFor(r *Route) *rate.Limiter {
	if l, ok := p.limiters[r]; ok {
		return l
	}
	limit := rate.Inf
	if r.BurstsPerSecond > 0 {
		limit = rate.Limit(r.BurstsPerSecond)
	}
	burst := r.Burst
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(limit, burst)
	p.limiters[r] = l
	return l
}

// matchRoute returns the first registered route whose template matches
// path, or nil if none do.
func (p *Pool) matchRoute(path string) *Route {
	for i := range p.routes {
		if _, ok := p.routes[i].Template.Match(path); ok {
			return &p.routes[i]
		}
	}
	return nil
}

// Admit blocks until id is allowed to start executing against path, or
// ctx is cancelled, or the request is cancelled first via
// [Pool.CancelRequest].
// id must be unique per in-flight request; Admit registers it as pending
// for the duration of the wait.
func (p *Pool) Admit(ctx context.Context, id, path string) error {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.pending == nil {
		p.pending = make(map[string]context.CancelFunc)
	}
	p.pending[id] = cancel
	route := p.matchRoute(path)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if route == nil {
		return nil
	}

	p.mu.Lock()
	limiter := p.limiterFor(route)
	p.mu.Unlock()

	return limiter.Wait(ctx)
}

// CancelRequest removes id from the admission queue, unblocking any
// [Pool.Admit] call waiting on it with ctx.Canceled. It implements
// [reqlife.Scheduler].
func (p *Pool) CancelRequest(id string) {
	p.mu.Lock()
	cancel, ok := p.pending[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

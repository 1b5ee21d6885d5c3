// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package asynchttp

import (
	"context"
	"io"
	"net/http"

	"github.com/adtrevor/asynchttp/config"
	"github.com/adtrevor/asynchttp/redirect"
	"github.com/adtrevor/asynchttp/reqlife"
	"github.com/adtrevor/asynchttp/scheduler"
)

// Client holds the collaborators a [Task] needs beyond the two state
// machines it owns directly: an [http.Client] to actually dial with, an
// optional admission [scheduler.Pool], an optional [redirect.Authorizer]
// for refreshing a bearer token carried across a followed redirect, and
// the validated [config.Options] governing redirects and idle timeouts.
type Client struct {
	HTTPClient *http.Client
	Scheduler  *scheduler.Pool
	Authorizer *redirect.Authorizer
	Options    config.Options
}

// NewClient returns a Client. httpClient defaults to
// [http.DefaultClient] if nil; pool may be nil to skip admission
// scheduling entirely.
func NewClient(httpClient *http.Client, pool *scheduler.Pool, opts config.Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTPClient: httpClient, Scheduler: pool, Options: opts}
}

// NewClientFromJSON parses data as a [config.Options] document and builds
// a Client from it, the same validate-then-unmarshal path
// [config.Parse] performs for any other caller of the config package.
func NewClientFromJSON(httpClient *http.Client, pool *scheduler.Pool, data []byte) (*Client, error) {
	opts, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	return NewClient(httpClient, pool, opts), nil
}

// Do runs req to completion, following redirects per c.Options, and
// reports the outcome to delegate exactly once (per [reqlife.Delegate]'s
// contract). body supplies the request body a stream-framed req carries;
// it is nil for a bodyless request. id identifies the request to
// c.Scheduler and must be unique among requests currently admitted
// through it. Do blocks until delegate has received its terminal call.
func (c *Client) Do(ctx context.Context, id string, req *http.Request, body io.Reader, delegate reqlife.Delegate) *Task {
	policy := &redirect.Policy{BaseURL: req.URL, MaxRedirects: c.Options.MaxRedirects}
	t := &Task{
		id:       id,
		client:   c,
		delegate: delegate,
		policy:   policy,
		bsm:      reqlife.NewBagState(policy.Predicate()),
	}
	t.run(ctx, req, body)
	return t
}

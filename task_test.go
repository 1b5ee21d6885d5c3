// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package asynchttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/adtrevor/asynchttp/config"
	"github.com/adtrevor/asynchttp/reqlife"
	"github.com/adtrevor/asynchttp/scheduler"
)

// recordingDelegate implements [reqlife.Delegate] and keeps everything it
// was handed, so a test can assert on it once [Client.Do] returns.
type recordingDelegate struct {
	head          *reqlife.ResponseHead
	body          bytes.Buffer
	succeeded     bool
	failed        bool
	err           error
	headCalls     int
	afterTerminal int
}

func (d *recordingDelegate) ForwardResponseHead(head reqlife.ResponseHead) {
	d.headCalls++
	h := head
	d.head = &h
}

func (d *recordingDelegate) ForwardResponseBodyParts(parts []reqlife.BodyPart) {
	if d.succeeded || d.failed {
		d.afterTerminal++
	}
	for _, p := range parts {
		d.body.Write(p.Data)
	}
}

func (d *recordingDelegate) Succeed() {
	d.succeeded = true
}

func (d *recordingDelegate) Fail(err error) {
	d.failed = true
	d.err = err
}

func TestClientDoGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hello world")
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), nil, config.Default())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	var d recordingDelegate
	c.Do(context.Background(), "req-1", req, nil, &d)

	if !d.succeeded {
		t.Fatalf("delegate did not see Succeed, failed=%v err=%v", d.failed, d.err)
	}
	if d.headCalls != 1 {
		t.Fatalf("ForwardResponseHead called %d times, want 1", d.headCalls)
	}
	if d.head.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", d.head.StatusCode)
	}
	if got := d.body.String(); got != "hello world" {
		t.Errorf("body = %q, want %q", got, "hello world")
	}
	if d.afterTerminal != 0 {
		t.Errorf("%d body deliveries arrived after a terminal call", d.afterTerminal)
	}
}

func TestClientDoFollowsRedirect(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "landed")
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	// net/http's own client follows redirects by default; CheckRedirect
	// here makes it hand the 302 straight back instead, so this test
	// exercises this module's own redirect following rather than
	// net/http's.
	httpClient := srv.Client()
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := NewClient(httpClient, nil, config.Default())
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/start", nil)
	if err != nil {
		t.Fatal(err)
	}

	var d recordingDelegate
	c.Do(context.Background(), "req-2", req, nil, &d)

	if !d.succeeded {
		t.Fatalf("delegate did not see Succeed, failed=%v err=%v", d.failed, d.err)
	}
	// Only the final hop's head should ever reach the delegate — the
	// intermediate 302 is intercepted by the redirect predicate, not
	// forwarded.
	if d.headCalls != 1 {
		t.Fatalf("ForwardResponseHead called %d times, want 1", d.headCalls)
	}
	if d.head.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", d.head.StatusCode)
	}
	if got := d.body.String(); got != "landed" {
		t.Errorf("body = %q, want %q", got, "landed")
	}
}

func TestClientDoStreamsRequestBody(t *testing.T) {
	const payload = "the quick brown fox jumps over the lazy dog"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(got)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), nil, config.Default())
	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.ContentLength = int64(len(payload))

	var d recordingDelegate
	c.Do(context.Background(), "req-3", req, strings.NewReader(payload), &d)

	if !d.succeeded {
		t.Fatalf("delegate did not see Succeed, failed=%v err=%v", d.failed, d.err)
	}
	if got := d.body.String(); got != payload {
		t.Errorf("echoed body = %q, want %q", got, payload)
	}
}

func TestClientDoFailsOnConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.Listener.Addr().String()
	srv.Close() // nothing is listening at addr anymore

	c := NewClient(nil, nil, config.Options{MaxRedirects: 5})
	req, err := http.NewRequest(http.MethodGet, "http://"+addr, nil)
	if err != nil {
		t.Fatal(err)
	}

	var d recordingDelegate
	c.Do(context.Background(), "req-4", req, nil, &d)

	if !d.failed {
		t.Fatalf("delegate did not see Fail")
	}
	if d.err == nil {
		t.Errorf("Fail called with nil error")
	}
}

func TestClientDoAdmitsThroughScheduler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := scheduler.NewPool(nil) // no routes: every request is admitted immediately, unthrottled
	c := NewClient(srv.Client(), pool, config.Default())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	var d recordingDelegate
	c.Do(context.Background(), strconv.Itoa(1), req, nil, &d)
	if !d.succeeded {
		t.Fatalf("delegate did not see Succeed, failed=%v err=%v", d.failed, d.err)
	}
}

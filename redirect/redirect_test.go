// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package redirect

import (
	"net/url"
	"testing"

	"github.com/adtrevor/asynchttp/reqlife"
)

type fakeHeaders map[string]string

func (f fakeHeaders) Header(name string) string { return f[name] }

func TestPolicyPredicate(t *testing.T) {
	base, _ := url.Parse("https://api.example.com/v1/widgets")
	p := &Policy{BaseURL: base, MaxRedirects: 2}
	pred := p.Predicate()

	target, ok := pred(reqlife.ResponseHead{StatusCode: 302, Opaque: fakeHeaders{"Location": "/v2/widgets"}})
	if !ok || target != "https://api.example.com/v2/widgets" {
		t.Fatalf("got (%q, %v), want (https://api.example.com/v2/widgets, true)", target, ok)
	}

	if _, ok := pred(reqlife.ResponseHead{StatusCode: 200}); ok {
		t.Fatal("200 should never be treated as a redirect")
	}
}

func TestPolicyMaxRedirects(t *testing.T) {
	p := &Policy{MaxRedirects: 1}
	pred := p.Predicate()

	if _, ok := pred(reqlife.ResponseHead{StatusCode: 302, Opaque: fakeHeaders{"Location": "/a"}}); !ok {
		t.Fatal("first redirect should be followed")
	}
	if _, ok := pred(reqlife.ResponseHead{StatusCode: 302, Opaque: fakeHeaders{"Location": "/b"}}); ok {
		t.Fatal("second redirect should exceed MaxRedirects")
	}
}

func TestStripAuthorization(t *testing.T) {
	tests := []struct {
		name         string
		base, target string
		want         bool
	}{
		{"same origin", "https://api.example.com/a", "https://api.example.com/b", false},
		{"cross host", "https://api.example.com/a", "https://evil.example.com/a", true},
		{"scheme downgrade", "https://api.example.com/a", "http://api.example.com/a", true},
		{"both loopback", "http://127.0.0.1:8080/a", "http://localhost:9090/a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, _ := url.Parse(tt.base)
			target, _ := url.Parse(tt.target)
			if got := StripAuthorization(base, target); got != tt.want {
				t.Errorf("StripAuthorization(%s, %s) = %v, want %v", tt.base, tt.target, got, tt.want)
			}
		})
	}
}

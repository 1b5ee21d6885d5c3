// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import "testing"

func TestParseValid(t *testing.T) {
	opts, err := Parse([]byte(`{"maxRedirects": 3, "idleReadTimeoutMillis": 5000, "routeBurstsPerSecond": 10, "stripAuthorizationOnRedirect": true}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opts.MaxRedirects != 3 {
		t.Errorf("MaxRedirects = %d, want 3", opts.MaxRedirects)
	}
	if !opts.StripAuthorizationOnRedirect {
		t.Error("StripAuthorizationOnRedirect = false, want true")
	}
}

func TestParseRejectsOutOfRange(t *testing.T) {
	if _, err := Parse([]byte(`{"maxRedirects": -1, "idleReadTimeoutMillis": 5000, "routeBurstsPerSecond": 10, "stripAuthorizationOnRedirect": true}`)); err == nil {
		t.Fatal("Parse accepted a negative maxRedirects")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("Parse accepted malformed JSON")
	}
}

func TestDefault(t *testing.T) {
	d := Default()
	if d.MaxRedirects <= 0 {
		t.Error("Default().MaxRedirects should be positive")
	}
}

// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config validates the options a client assembles a [reqlife]
// request lifecycle from, the way the teacher SDK validates tool
// arguments: infer a schema from the Go type, resolve it once, and
// validate every incoming options document against the resolved schema
// before using it.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Options configures one request's admission, redirect and timeout
// behavior.
type Options struct {
	// MaxRedirects bounds how many redirects the bag-side state machine
	// will follow before giving up and forwarding the response as-is.
	MaxRedirects int `json:"maxRedirects" jsonschema:"maximum number of redirects to follow,minimum=0,maximum=20"`

	// IdleReadTimeoutMillis is how long the connection-side state
	// machine waits for the next response byte once the request has been
	// fully sent before failing with [reqlife.ErrReadTimeout].
	IdleReadTimeoutMillis int64 `json:"idleReadTimeoutMillis" jsonschema:"idle read timeout in milliseconds,minimum=0"`

	// RouteBurstsPerSecond is a per-route admission rate; zero means
	// unbounded. It is parsed and validated only: the asynchttp Client
	// does not read it, and a scheduler.Pool takes its rates from the
	// Route values it is built with.
	RouteBurstsPerSecond float64 `json:"routeBurstsPerSecond" jsonschema:"requests admitted per second per route,minimum=0"`

	// StripAuthorizationOnRedirect, when true, drops the Authorization
	// header before replaying a request whose redirect target is
	// cross-origin.
	StripAuthorizationOnRedirect bool `json:"stripAuthorizationOnRedirect"`
}

var schema = mustInferSchema()

func mustInferSchema() *jsonschema.Resolved {
	s, err := jsonschema.For[Options](nil)
	if err != nil {
		panic(fmt.Sprintf("config: inferring schema for Options: %v", err))
	}
	// The jsonschema struct tags only become descriptions; the numeric
	// bounds they name are applied here.
	zero, maxRedirects := 0.0, 20.0
	s.Properties["maxRedirects"].Minimum = &zero
	s.Properties["maxRedirects"].Maximum = &maxRedirects
	s.Properties["idleReadTimeoutMillis"].Minimum = &zero
	s.Properties["routeBurstsPerSecond"].Minimum = &zero
	resolved, err := s.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		panic(fmt.Sprintf("config: resolving Options schema: %v", err))
	}
	return resolved
}

// Default returns the options this module uses when none are supplied.
func Default() Options {
	return Options{
		MaxRedirects:                 5,
		IdleReadTimeoutMillis:        30_000,
		StripAuthorizationOnRedirect: true,
	}
}

// Parse validates data against the Options schema and unmarshals it.
func Parse(data []byte) (Options, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Options{}, fmt.Errorf("config: invalid JSON: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return Options{}, fmt.Errorf("config: %w", err)
	}
	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: %w", err)
	}
	return opts, nil
}

// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package redirect builds the [reqlife.RedirectPredicate] the bag-side
// state machine consults on every response head, and carries the
// Authorization-header stripping policy that goes with following a
// redirect across origins. It is the one piece of behavior this module
// adds beyond the base state machines: an HTTP client that blindly
// replays request headers across a redirect risks leaking bearer tokens
// to a different origin.
package redirect

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/adtrevor/asynchttp/internal/util"
	"github.com/adtrevor/asynchttp/reqlife"
)

// HeaderSource is the subset of an HTTP response a [Policy] needs to
// decide whether a response head is a redirect. A [reqlife.ResponseHead]
// carries one of these as its Opaque field for redirect-eligible
// statuses; callers that never redirect need not implement it.
type HeaderSource interface {
	Header(name string) string
}

// Policy decides which response heads are redirects and how the
// Authorization header should be treated when one is followed.
type Policy struct {
	// BaseURL is the URL the request was issued against, used to decide
	// whether a redirect target is cross-origin.
	BaseURL *url.URL

	// MaxRedirects bounds how many times Predicate will report a target
	// for a single logical request before giving up and letting the
	// response through to the delegate instead. Zero means no redirects
	// are followed at all.
	MaxRedirects int

	followed int
}

// redirectStatuses mirrors the status codes net/http treats as
// redirectable.
var redirectStatuses = map[int]bool{
	301: true,
	302: true,
	303: true,
	307: true,
	308: true,
}

// Predicate returns a [reqlife.RedirectPredicate] bound to p. Every
// redirect the predicate accepts advances p's internal redirect counter,
// so a Policy must be created fresh per logical request and shared by
// the [reqlife.BagState] of every hop in it.
func (p *Policy) Predicate() reqlife.RedirectPredicate {
	return func(head reqlife.ResponseHead) (string, bool) {
		if !redirectStatuses[head.StatusCode] {
			return "", false
		}
		if p.followed >= p.MaxRedirects {
			return "", false
		}
		src, ok := head.Opaque.(HeaderSource)
		if !ok {
			return "", false
		}
		loc := src.Header("Location")
		if loc == "" {
			return "", false
		}
		target, err := p.resolve(loc)
		if err != nil {
			return "", false
		}
		p.followed++
		return target, true
	}
}

func (p *Policy) resolve(loc string) (string, error) {
	ref, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	if p.BaseURL == nil {
		return ref.String(), nil
	}
	return p.BaseURL.ResolveReference(ref).String(), nil
}

// StripAuthorization reports whether the Authorization header should be
// dropped before replaying a request against target, given it was
// originally issued against base. The header is always stripped across
// a scheme or host change; the one exception is two loopback addresses
// talking to each other (common when a local proxy forwards to a local
// dev server on another port), since [util.IsLoopback] treats those as
// equivalent rather than cross-origin.
func StripAuthorization(base, target *url.URL) bool {
	if base == nil || target == nil {
		return true
	}
	if !strings.EqualFold(base.Scheme, target.Scheme) {
		return true
	}
	if strings.EqualFold(base.Host, target.Host) {
		return false
	}
	return !(util.IsLoopback(base.Host) && util.IsLoopback(target.Host))
}

// Authorizer refreshes the bearer token to send after a redirect is
// followed and the original Authorization header was stripped or has
// gone stale. It wraps an [oauth2.TokenSource] the way the teacher SDK's
// auth package wraps one for its HTTP transport, but here the token is
// fetched once per followed redirect rather than once per 401.
type Authorizer struct {
	Source oauth2.TokenSource
}

// BearerToken returns the access token to attach to the replayed
// request, refreshing it first if the source's token has expired.
func (a *Authorizer) BearerToken(ctx context.Context) (string, error) {
	tok, err := a.Source.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// TokenExpired reports whether a JWT bearer token's exp claim has
// already passed, without validating its signature. It is used to decide
// whether a token carried across a followed redirect is still worth
// replaying versus letting the 401 the stale token will produce trigger
// a fresh [reqlife.Delegate] failure instead.
func TokenExpired(bearer string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(bearer, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !exp.After(time.Now())
}

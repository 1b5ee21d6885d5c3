// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package asynchttp is the owner [reqlife/doc.go] describes but does not
// itself provide: the code that holds both a [reqlife.ConnState] and a
// [reqlife.BagState] for one logical request, drives the former from a
// live net/http round trip, and feeds the actions each machine returns
// into the other. [Client] assembles a [scheduler.Pool] and a
// [redirect.Policy] around that pair; [Task] is one in-flight request,
// including every hop a followed redirect adds.
package asynchttp

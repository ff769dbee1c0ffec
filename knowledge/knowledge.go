//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package knowledge hosts the graph-backed tools available to agents,
// together with the read-through result cache and best-effort CRM
// enrichment. The knowledge-graph storage engine itself is external; only
// its query interface is consumed here.
package knowledge

import (
	"context"
	"errors"
)

// Record is one knowledge-graph record or tool-result envelope.
type Record = map[string]any

// ErrQueryNotSupported is returned by graph implementations that do not
// recognize a named query.
var ErrQueryNotSupported = errors.New("graph query not supported")

// Graph is the query interface of the knowledge-graph connector. Queries
// are named after the tool issuing them; args is the canonical argument
// map of the call.
type Graph interface {
	// Query runs the named query and returns matching records. A query
	// that matches nothing returns an empty slice and no error.
	Query(ctx context.Context, name string, args map[string]any) ([]Record, error)
}

// CRM is the optional live-enrichment client consulted by deal-status
// lookups. Enrichment is best-effort; callers tolerate any error.
type CRM interface {
	// DealStatus fetches the live status fields of a deal.
	DealStatus(ctx context.Context, dealID string) (Record, error)
}

// Data-freshness indicators attached by hybrid tools.
const (
	// FreshnessLive marks a result enriched by the live CRM API.
	FreshnessLive = "live_api_enhanced"
	// FreshnessGraphOnly marks a result served from the graph alone.
	FreshnessGraphOnly = "graph_only"
)

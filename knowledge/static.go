//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package knowledge

import (
	"context"
	"sync"
	"sync/atomic"
)

// StaticGraph is an in-process Graph backed by registered query handlers.
// It serves tests and the offline fallback mode; production deployments
// plug in a real connector.
type StaticGraph struct {
	mu       sync.RWMutex
	handlers map[string]func(args map[string]any) []Record
	queries  atomic.Int64
}

// NewStaticGraph creates an empty static graph.
func NewStaticGraph() *StaticGraph {
	return &StaticGraph{
		handlers: make(map[string]func(args map[string]any) []Record),
	}
}

// Handle registers the handler serving the named query.
func (g *StaticGraph) Handle(name string, fn func(args map[string]any) []Record) {
	g.mu.Lock()
	g.handlers[name] = fn
	g.mu.Unlock()
}

// HandleRecords registers a fixed record set for the named query.
func (g *StaticGraph) HandleRecords(name string, records ...Record) {
	g.Handle(name, func(map[string]any) []Record {
		return records
	})
}

// Queries returns the number of queries served, across all names.
func (g *StaticGraph) Queries() int64 {
	return g.queries.Load()
}

// Query implements the Graph interface. Unregistered queries match nothing.
func (g *StaticGraph) Query(ctx context.Context, name string, args map[string]any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.queries.Add(1)
	g.mu.RLock()
	fn, ok := g.handlers[name]
	g.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return fn(args), nil
}

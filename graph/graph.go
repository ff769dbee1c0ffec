//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package graph provides the small state machine that drives one turn of a
// conversation. A graph has named nodes connected by static edges and
// conditional branches, exactly one entry point, and an optional finalizer
// node that still runs when an earlier node fails.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewcall-ai/crewcall/log"
)

// End is the pseudo-node name terminating execution.
const End = "__end__"

var (
	// ErrGraphNotCompiled is returned when executing a graph that was
	// never compiled.
	ErrGraphNotCompiled = errors.New("graph not compiled")
	// ErrNodeRevisited is returned when a cycle revisits a node within a
	// single execution.
	ErrNodeRevisited = errors.New("node revisited within one execution")
)

// NodeFunc is the body of a node. It mutates the state in place.
type NodeFunc[S any] func(ctx context.Context, state S) error

// BranchFunc picks the next node name based on the state.
type BranchFunc[S any] func(state S) string

// Graph is a mutable graph builder. Build the topology, then Compile.
type Graph[S any] struct {
	nodes     map[string]NodeFunc[S]
	edges     map[string]string
	branches  map[string]BranchFunc[S]
	entry     string
	finalizer string
}

// New creates an empty graph builder.
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:    make(map[string]NodeFunc[S]),
		edges:    make(map[string]string),
		branches: make(map[string]BranchFunc[S]),
	}
}

// AddNode registers a named node.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[name] = fn
	return g
}

// AddEdge registers the static successor of a node.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddBranch registers a conditional successor for a node. A branch takes
// precedence over a static edge on the same node.
func (g *Graph[S]) AddBranch(from string, fn BranchFunc[S]) *Graph[S] {
	g.branches[from] = fn
	return g
}

// SetEntryPoint names the node execution starts at.
func (g *Graph[S]) SetEntryPoint(name string) *Graph[S] {
	g.entry = name
	return g
}

// SetFinalizer names the node that always runs once per execution, even
// when an earlier node failed. The finalizer is reached through the normal
// topology on success and invoked directly on failure.
func (g *Graph[S]) SetFinalizer(name string) *Graph[S] {
	g.finalizer = name
	return g
}

// Compile validates the topology and returns an executable graph.
func (g *Graph[S]) Compile() (*Executable[S], error) {
	if g.entry == "" {
		return nil, fmt.Errorf("graph has no entry point")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("entry point %q is not a node", g.entry)
	}
	if g.finalizer != "" {
		if _, ok := g.nodes[g.finalizer]; !ok {
			return nil, fmt.Errorf("finalizer %q is not a node", g.finalizer)
		}
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("edge source %q is not a node", from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("edge target %q is not a node", to)
			}
		}
	}
	return &Executable[S]{graph: g}, nil
}

// Executable is a compiled, immutable graph.
type Executable[S any] struct {
	graph *Graph[S]
}

// Execute runs the graph from the entry point until End. Node errors stop
// the normal walk; the finalizer still runs and the original error is
// returned. Context cancellation stops execution immediately and skips the
// finalizer.
func (e *Executable[S]) Execute(ctx context.Context, state S) error {
	if e == nil || e.graph == nil {
		return ErrGraphNotCompiled
	}
	g := e.graph
	visited := make(map[string]bool, len(g.nodes))
	current := g.entry
	var nodeErr error
	finalized := false

	for current != End {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visited[current] {
			nodeErr = fmt.Errorf("%w: %s", ErrNodeRevisited, current)
			break
		}
		visited[current] = true

		fn, ok := g.nodes[current]
		if !ok {
			nodeErr = fmt.Errorf("unknown node %q", current)
			break
		}
		if err := fn(ctx, state); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			nodeErr = fmt.Errorf("node %s: %w", current, err)
			break
		}
		if current == g.finalizer {
			finalized = true
		}

		if branch, ok := g.branches[current]; ok {
			current = branch(state)
			continue
		}
		next, ok := g.edges[current]
		if !ok {
			current = End
			continue
		}
		current = next
	}

	if nodeErr != nil && g.finalizer != "" && !finalized {
		if err := ctx.Err(); err != nil {
			return nodeErr
		}
		if err := g.nodes[g.finalizer](ctx, state); err != nil {
			log.Warnf("graph finalizer %s failed after node error: %v", g.finalizer, err)
		}
	}
	return nodeErr
}

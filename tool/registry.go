//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"fmt"
	"sort"
	"sync"
)

// Registry hosts the set of callable tools available to agents. Agents do
// not hold tools directly: they declare the category tags they require and
// receive a filtered view.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]CallableTool // tool name -> tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]CallableTool),
	}
}

// Register adds a tool to the registry. Registering a tool with a duplicate
// name replaces the previous registration.
func (r *Registry) Register(t CallableTool) error {
	decl := t.Declaration()
	if decl == nil || decl.Name == "" {
		return fmt.Errorf("tool declaration must carry a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[decl.Name] = t
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (CallableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ByCategories returns the tools belonging to any of the given categories,
// keyed by tool name. This is the capability-set view handed to an agent.
func (r *Registry) ByCategories(categories ...Category) map[string]CallableTool {
	want := make(map[Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CallableTool)
	for name, t := range r.tools {
		if want[t.Declaration().Category] {
			out[name] = t
		}
	}
	return out
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

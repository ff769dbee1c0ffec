//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package function provides function-based tool implementations.
package function

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crewcall-ai/crewcall/tool"
)

// FunctionTool wraps a plain function as a CallableTool. It provides a
// generic way to expose any function that takes a typed argument struct and
// returns a typed result, with JSON marshaling handled uniformly.
type FunctionTool[I, O any] struct {
	declaration *tool.Declaration
	fn          func(context.Context, I) (O, error)
}

// Option configures a FunctionTool.
type Option func(*tool.Declaration)

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(d *tool.Declaration) {
		d.Name = name
	}
}

// WithDescription sets the natural-language description consumed by the LLM.
func WithDescription(description string) Option {
	return func(d *tool.Declaration) {
		d.Description = description
	}
}

// WithCategory sets the capability category tag.
func WithCategory(category tool.Category) Option {
	return func(d *tool.Declaration) {
		d.Category = category
	}
}

// WithDeclaration replaces the entire declaration. Later options still apply
// on top of it.
func WithDeclaration(decl *tool.Declaration) Option {
	return func(d *tool.Declaration) {
		*d = *decl
	}
}

// New creates a FunctionTool from the given function and options.
func New[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	decl := &tool.Declaration{}
	for _, opt := range opts {
		opt(decl)
	}
	return &FunctionTool[I, O]{
		declaration: decl,
		fn:          fn,
	}
}

// Declaration returns the tool's descriptor.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return ft.declaration
}

// Call executes the wrapped function with JSON arguments.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("unmarshal arguments for tool %s: %w", ft.declaration.Name, err)
		}
	}
	return ft.fn(ctx, input)
}

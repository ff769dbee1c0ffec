//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package tool provides tool interfaces and the registry exposed to agents.
package tool

import (
	"context"
	"time"

	"github.com/crewcall-ai/crewcall/identity"
)

// Category tags govern which agent capability set exposes which tools.
type Category string

// Category constants for the three disjoint tool families.
const (
	// CategoryPeople covers CRM/people tools.
	CategoryPeople Category = "people"
	// CategoryProjects covers projects/creative tools.
	CategoryProjects Category = "projects"
	// CategoryDocuments covers document/content tools.
	CategoryDocuments Category = "documents"
)

// Schema is a JSON schema describing tool input or output.
type Schema struct {
	// Type is the JSON schema type (usually "object").
	Type string `json:"type"`
	// Properties maps property names to their schemas.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Required lists the required property names.
	Required []string `json:"required,omitempty"`
	// Description is the human-readable description of the value.
	Description string `json:"description,omitempty"`
	// Items is the schema of array items.
	Items *Schema `json:"items,omitempty"`
}

// Declaration is the immutable descriptor of a tool. The description is
// consumed by the LLM for tool selection.
type Declaration struct {
	// Name is the stable tool name.
	Name string `json:"name"`
	// Description is the natural-language description of the tool.
	Description string `json:"description"`
	// Category is the capability tag the tool belongs to.
	Category Category `json:"category"`
	// Sensitivity is the data-sensitivity level of the tool's results.
	Sensitivity identity.Sensitivity `json:"sensitivity"`
	// CacheTTL is the cache-TTL hint for results of this tool.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`
	// InputSchema is the JSON schema of the tool arguments.
	InputSchema *Schema `json:"input_schema,omitempty"`
	// OutputSchema is the JSON schema of the tool result.
	OutputSchema *Schema `json:"output_schema,omitempty"`
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Declaration returns the tool's descriptor.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with JSON arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the given JSON arguments and returns a
	// JSON-serializable result. Tools never report a missing entity as an
	// error: they return a structured result with found=false instead.
	// A non-nil error indicates an invocation failure (bad arguments,
	// context cancellation), not a domain miss.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

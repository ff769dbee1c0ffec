//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package model provides the uniform client contract over LLM providers.
package model

import "github.com/crewcall-ai/crewcall/tool"

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the role of the message author.
	Role Role `json:"role"`
	// Content is the message content.
	Content string `json:"content,omitempty"`
	// ToolID is the ID of the tool call this message responds to.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the name of the tool for tool-role messages.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls is the optional tool calls emitted with the message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewSystemMessage creates a system message with the given content.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message with the given content.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message with the given content.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool-role message carrying a tool result.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{Role: RoleTool, ToolID: toolID, ToolName: toolName, Content: content}
}

// ToolCall represents a tool call intent emitted by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier of the call.
	ID string `json:"id"`
	// Type is the call type; providers currently emit "function".
	Type string `json:"type,omitempty"`
	// Function carries the tool name and JSON arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function name and arguments of a tool call.
type FunctionCall struct {
	// Name is the tool name.
	Name string `json:"name"`
	// Arguments is the raw JSON argument payload.
	Arguments []byte `json:"arguments"`
}

// Complexity is the discrete label computed from the query text, steering
// provider selection.
type Complexity string

// Complexity labels.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Request is the request sent to a model.
type Request struct {
	// Messages is the ordered conversation history.
	Messages []Message `json:"messages"`

	// Tools binds the callable tools available to the model. Nil means a
	// plain completion.
	Tools map[string]tool.CallableTool `json:"-"`

	// Model overrides the provider's default model name when non-empty.
	Model string `json:"model,omitempty"`

	// Provider is an optional preferred-provider hint consumed by the router.
	Provider string `json:"provider,omitempty"`

	// Complexity is an optional precomputed complexity label. When empty the
	// router assesses it from the latest user message.
	Complexity Complexity `json:"complexity,omitempty"`

	// MaxTokens caps the completion length when non-nil.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature overrides the provider default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`

	// Stream requests a streaming response.
	Stream bool `json:"stream,omitempty"`
}

// LatestUserMessage returns the content of the most recent user message, or
// the empty string if there is none.
func (r *Request) LatestUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

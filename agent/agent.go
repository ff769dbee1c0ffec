//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package agent provides the specialized conversation agents and the shared
// turn pipeline they run on.
package agent

import (
	"context"
	"time"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/memory"
	"github.com/crewcall-ai/crewcall/model"
)

// Kind identifies a specialized agent.
type Kind string

// Agent kinds.
const (
	KindSales     Kind = "sales"
	KindTalent    Kind = "talent"
	KindAnalytics Kind = "analytics"
)

// Kinds lists all agent kinds in routing order.
var Kinds = []Kind{KindSales, KindTalent, KindAnalytics}

// Analysis is the result of an agent's query analysis hook.
type Analysis struct {
	// Intent is a short free-form intent label.
	Intent string `json:"intent,omitempty"`
	// TaskType is the agent-specific task classification.
	TaskType string `json:"task_type,omitempty"`
	// TaskParams carries parameters extracted from the query.
	TaskParams map[string]any `json:"task_params,omitempty"`
	// RequiresKnowledgeGraph reports whether tool calls are expected.
	RequiresKnowledgeGraph bool `json:"requires_knowledge_graph"`
	// Complexity is the assessed complexity of the query.
	Complexity model.Complexity `json:"complexity,omitempty"`
}

// AnalyzeFunc is the agent-specific query analysis hook.
type AnalyzeFunc func(text string, caller identity.Caller) Analysis

// Request is one turn handed to an agent.
type Request struct {
	// Caller is the authenticated caller identity.
	Caller identity.Caller
	// Text is the (possibly sanitized) query text.
	Text string
	// ConversationID continues an existing conversation when non-empty.
	ConversationID string
}

// Response is the outcome of one agent turn.
type Response struct {
	// Content is the final assistant message.
	Content string `json:"content"`
	// ConversationID is the conversation the turn ran under.
	ConversationID string `json:"conversation_id"`
	// AgentKind is the agent that produced the response.
	AgentKind Kind `json:"agent_kind"`
	// TaskType is the agent's task classification for the turn.
	TaskType string `json:"task_type,omitempty"`
	// ToolResults maps tool names to their results for the turn.
	ToolResults map[string]any `json:"tool_results,omitempty"`
	// ToolErrors lists per-call tool failures, which do not fail the turn.
	ToolErrors []string `json:"tool_errors,omitempty"`
	// Provider is the LLM provider that served the final content.
	Provider string `json:"provider,omitempty"`
	// Timestamp is when the turn completed.
	Timestamp time.Time `json:"timestamp"`
}

// Agent drives one conversation turn for its domain.
type Agent interface {
	// Kind returns the agent kind.
	Kind() Kind
	// Chat runs one turn.
	Chat(ctx context.Context, request *Request) (*Response, error)
}

// State is the per-turn mutable context threaded through the graph. It is
// owned by exactly one executing turn.
type State struct {
	// Caller is the caller identity echo.
	Caller identity.Caller
	// ConversationID is the conversation the turn runs under.
	ConversationID string
	// Query is the user query text.
	Query string
	// Messages is the turn's message log, append-only.
	Messages []model.Message
	// HistoryLen is how many leading messages came from prior turns.
	HistoryLen int
	// Analysis is the stored task-analysis record.
	Analysis Analysis
	// MemoryContext is the assembled memory context, may be nil.
	MemoryContext *memory.Context
	// ToolResults accumulates tool outputs keyed by tool name.
	ToolResults map[string]any
	// ToolErrors collects per-call tool failures.
	ToolErrors []string
	// Provider is the provider that served the most recent LLM call.
	Provider string
	// UpdatedAt is bumped by every node.
	UpdatedAt time.Time
}

func (s *State) lastMessage() *model.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

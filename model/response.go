//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package model

import "time"

// Error type constants for ResponseError.Type field.
const (
	ErrorTypeStreamError = "stream_error"
	ErrorTypeAPIError    = "api_error"
	ErrorTypeFlowError   = "flow_error"
)

// Object type constants for Response.Object field.
const (
	// ObjectTypeChatCompletion is the object type for chat completion responses.
	ObjectTypeChatCompletion = "chat.completion"
	// ObjectTypeChatCompletionChunk is the object type for streaming chunks.
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	// ObjectTypeError is the object type for error responses.
	ObjectTypeError = "error"
)

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of the choice.
	Index int `json:"index"`

	// Message is the full message content. Populated on final and
	// non-streaming responses.
	Message Message `json:"message,omitempty"`

	// Delta is the incremental message content. Populated on streaming
	// chunks only.
	Delta Message `json:"delta,omitempty"`

	// FinishReason is the reason the choice was finished: "stop", "length",
	// "tool_calls", etc.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// ResponseError represents an API-level error that occurred after successful
// communication with the model service.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`
	// Type is one of the ErrorType constants.
	Type string `json:"type,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return e.Message
}

// Response is the response from the model.
//
// The Error field represents API-level errors that occur after successful
// communication with the model service. Function-level errors returned by
// Complete/Stream indicate system-level failures that prevent communication
// entirely (invalid parameters, network connectivity, authentication).
type Response struct {
	// ID is the unique identifier for this response.
	ID string `json:"id"`

	// Object describes the type of object returned (e.g. "chat.completion").
	Object string `json:"object"`

	// Created is the Unix timestamp when the response was created.
	Created int64 `json:"created"`

	// Model is the model used to generate the response.
	Model string `json:"model"`

	// Choices contains the completion choices.
	Choices []Choice `json:"choices"`

	// Usage contains token usage information (may be nil for streaming
	// chunks).
	Usage *Usage `json:"usage,omitempty"`

	// Error carries an API-level error, if any.
	Error *ResponseError `json:"error,omitempty"`

	// Timestamp is the local time the response was assembled.
	Timestamp time.Time `json:"timestamp"`

	// Done indicates the response is final. Streaming chunks carry false
	// until the terminating metadata chunk.
	Done bool `json:"done"`

	// IsPartial indicates a streaming delta chunk.
	IsPartial bool `json:"is_partial,omitempty"`
}

// AssistantMessage returns the first choice's message, or a zero Message if
// the response carries no choices.
func (r *Response) AssistantMessage() Message {
	if len(r.Choices) == 0 {
		return Message{Role: RoleAssistant}
	}
	return r.Choices[0].Message
}

// ToolCalls returns the tool calls of the first choice, if any.
func (r *Response) ToolCalls() []ToolCall {
	if len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

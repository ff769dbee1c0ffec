//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package mock provides a scriptable in-process model implementation used by
// tests and by the offline fallback mode.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/crewcall-ai/crewcall/model"
)

const defaultDimensions = 64

// Step is one scripted reply. Exactly one of Response or Err is consumed per
// call; when the script is exhausted the mock replies with a canned echo.
type Step struct {
	// Response is the scripted response.
	Response *model.Response
	// Err is the scripted call failure.
	Err error
}

// Model is a scriptable model.Model and model.Embedder implementation.
type Model struct {
	name string

	mu    sync.Mutex
	steps []Step
	calls int

	dimensions int
}

var (
	_ model.Model    = (*Model)(nil)
	_ model.Embedder = (*Model)(nil)
)

// New creates a mock model with the given scripted steps.
func New(name string, steps ...Step) *Model {
	return &Model{
		name:       name,
		steps:      steps,
		dimensions: defaultDimensions,
	}
}

// TextResponse builds a plain assistant response for scripting.
func TextResponse(content string) *model.Response {
	return &model.Response{
		Object:    model.ObjectTypeChatCompletion,
		Created:   time.Now().Unix(),
		Timestamp: time.Now(),
		Done:      true,
		Choices: []model.Choice{{
			Message: model.NewAssistantMessage(content),
		}},
		Usage: &model.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// ToolCallResponse builds a response carrying a single tool-call intent.
func ToolCallResponse(toolName string, jsonArgs string) *model.Response {
	rsp := TextResponse("")
	rsp.Choices[0].Message.ToolCalls = []model.ToolCall{{
		ID:   "call_" + toolName,
		Type: "function",
		Function: model.FunctionCall{
			Name:      toolName,
			Arguments: []byte(jsonArgs),
		},
	}}
	return rsp
}

// Enqueue appends scripted steps.
func (m *Model) Enqueue(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Calls returns the number of Complete/Stream invocations observed.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Model) next() (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.steps) == 0 {
		return TextResponse("This is a mock response."), nil
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// Complete implements the model.Model interface.
func (m *Model) Complete(ctx context.Context, request *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.next()
}

// Stream implements the model.Model interface. The scripted response is
// re-played as one delta chunk followed by the terminating response.
func (m *Model) Stream(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	rsp, err := m.next()
	if err != nil {
		return nil, err
	}
	out := make(chan *model.Response, 2)
	go func() {
		defer close(out)
		content := rsp.AssistantMessage().Content
		if content != "" {
			chunk := &model.Response{
				Object:    model.ObjectTypeChatCompletionChunk,
				Timestamp: time.Now(),
				IsPartial: true,
				Choices: []model.Choice{{
					Delta: model.NewAssistantMessage(content),
				}},
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- rsp:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// Embed implements the model.Embedder interface with a deterministic
// token-hash embedding. Similar texts map to similar vectors, which is
// enough for exercising similarity search in tests and offline mode.
func (m *Model) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, m.dimensions)
	var token []byte
	flush := func() {
		if len(token) == 0 {
			return
		}
		h := fnv.New32a()
		h.Write(token)
		vec[int(h.Sum32())%m.dimensions]++
		token = token[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' {
			flush()
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		token = append(token, c)
	}
	flush()
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// Dimensions implements the model.Embedder interface.
func (m *Model) Dimensions() int {
	return m.dimensions
}

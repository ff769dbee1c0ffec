//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/model"
)

const extractionSystemPrompt = `Extract durable facts about the user from the conversation transcript.
Return a JSON array, no other text. Each element:
{"content": "...", "fact_type": "identity|preference|requirement|goal", "confidence": 0.0-1.0}
Only include facts worth remembering across conversations. Return [] when there are none.`

// LLMExtractor derives facts with a model call and degrades to the rule
// extractor when the call or its output is unusable.
type LLMExtractor struct {
	model    model.Model
	fallback Extractor
}

// NewLLMExtractor creates an LLM-backed extractor over the given model.
func NewLLMExtractor(m model.Model) *LLMExtractor {
	return &LLMExtractor{
		model:    m,
		fallback: NewRuleExtractor(),
	}
}

// Extract implements the Extractor interface.
func (e *LLMExtractor) Extract(ctx context.Context, transcript string) ([]Fact, error) {
	rsp, err := e.model.Complete(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(extractionSystemPrompt),
			model.NewUserMessage(transcript),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warnf("llm fact extraction failed, using rule extractor: %v", err)
		return e.fallback.Extract(ctx, transcript)
	}

	facts, ok := parseFacts(rsp.AssistantMessage().Content)
	if !ok {
		log.Warnf("llm fact extraction returned unparseable output, using rule extractor")
		return e.fallback.Extract(ctx, transcript)
	}
	return facts, nil
}

// parseFacts decodes the model output, tolerating surrounding prose and
// markdown fences around the JSON array.
func parseFacts(content string) ([]Fact, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, false
	}
	var facts []Fact
	if err := json.Unmarshal([]byte(content[start:end+1]), &facts); err != nil {
		return nil, false
	}
	out := facts[:0]
	for _, f := range facts {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			f.Confidence = 0.5
		}
		out = append(out, f)
	}
	return out, true
}

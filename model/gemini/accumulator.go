//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package gemini

import (
	"strings"
	"time"

	"github.com/crewcall-ai/crewcall/model"
)

// accumulator accumulates chunks from a stream into a final response.
type accumulator struct {
	model        string
	fullText     strings.Builder
	finishReason strings.Builder
	toolCalls    []model.ToolCall
	usage        model.Usage
}

// accumulate folds one streamed chunk into the accumulator.
func (a *accumulator) accumulate(resp *model.Response) {
	a.model = resp.Model
	for _, choice := range resp.Choices {
		if choice.FinishReason != nil {
			a.finishReason.Reset()
			a.finishReason.WriteString(*choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			a.fullText.WriteString(choice.Delta.Content)
		}
		if len(choice.Delta.ToolCalls) > 0 {
			a.toolCalls = append(a.toolCalls, choice.Delta.ToolCalls...)
		}
	}
	if resp.Usage != nil {
		a.usage = *resp.Usage
	}
}

// buildResponse builds the final terminating response.
func (a *accumulator) buildResponse() *model.Response {
	now := time.Now()
	var finishReason *string
	if fr := a.finishReason.String(); fr != "" {
		finishReason = &fr
	}
	return &model.Response{
		Model:     a.model,
		Object:    model.ObjectTypeChatCompletion,
		Created:   now.Unix(),
		Timestamp: now,
		Done:      true,
		Choices: []model.Choice{{
			Message: model.Message{
				Role:      model.RoleAssistant,
				Content:   a.fullText.String(),
				ToolCalls: a.toolCalls,
			},
			FinishReason: finishReason,
		}},
		Usage: &a.usage,
	}
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package router

import (
	"strings"

	"github.com/crewcall-ai/crewcall/model"
)

// Keyword families used by complexity assessment. Matching is
// case-insensitive substring counting on the latest user message.
var (
	analysisKeywords = []string{
		"analyze", "analysis", "compare", "evaluate", "assess", "forecast",
	}
	multiStepKeywords = []string{
		"and then", "after that", "first", "step by step", "finally",
	}
	reasoningKeywords = []string{
		"why", "because", "explain", "therefore",
	}
)

// AssessComplexity computes the complexity label of the latest user message
// in the request. The rule is fixed:
//
//	analysis >= 2 OR multi-step >= 2 OR reasoning >= 1 OR length > 500 -> Complex
//	analysis >= 1 OR multi-step >= 1 OR length > 200                   -> Moderate
//	otherwise                                                          -> Simple
func AssessComplexity(messages []model.Message) model.Complexity {
	var text string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			text = messages[i].Content
			break
		}
	}
	lower := strings.ToLower(text)
	analysis := countAny(lower, analysisKeywords)
	multiStep := countAny(lower, multiStepKeywords)
	reasoning := countAny(lower, reasoningKeywords)
	switch {
	case analysis >= 2 || multiStep >= 2 || reasoning >= 1 || len(text) > 500:
		return model.ComplexityComplex
	case analysis >= 1 || multiStep >= 1 || len(text) > 200:
		return model.ComplexityModerate
	default:
		return model.ComplexitySimple
	}
}

func countAny(text string, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		total += strings.Count(text, kw)
	}
	return total
}

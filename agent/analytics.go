//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"strings"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/prompt"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/tool"
)

// Analytics task keyword sets, checked in order.
var analyticsTasks = []struct {
	taskType string
	keywords []string
}{
	{"performance_analysis", []string{"performance", "results", "metrics", "how did"}},
	{"forecasting", []string{"forecast", "predict", "projection", "next quarter"}},
	{"document_analysis", []string{"document", "brief", "treatment", "report"}},
	{"vendor_analysis", []string{"vendor", "supplier"}},
	{"team_analysis", []string{"team", "staffing", "composition"}},
}

// NewAnalytics creates the analytics agent. It carries the document,
// projects and people tools and prefers the high-quality provider.
func NewAnalytics(llmRouter *router.Router, prompts *prompt.Registry,
	registry *tool.Registry, opts ...Option) (*Base, error) {
	all := append([]Option{
		WithTools(registry.ByCategories(
			tool.CategoryDocuments, tool.CategoryProjects, tool.CategoryPeople)),
		WithAnalyzeFunc(analyzeAnalytics),
	}, opts...)
	return NewBase(KindAnalytics, llmRouter, prompts, all...)
}

func analyzeAnalytics(text string, caller identity.Caller) Analysis {
	lower := strings.ToLower(text)
	taskType := "general"
	for _, task := range analyticsTasks {
		if containsAnyKeyword(lower, task.keywords) {
			taskType = task.taskType
			break
		}
	}
	return Analysis{
		Intent:                 "analytics_inquiry",
		TaskType:               taskType,
		TaskParams:             map[string]any{"query": text},
		RequiresKnowledgeGraph: true,
		// Analytics work always routes to the high-quality tier.
		Complexity: model.ComplexityComplex,
	}
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/prompt"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/tool"
)

// NewSales creates the sales agent. It carries the CRM/people and projects
// tools and performs no keyword intent detection: the LLM picks tools from
// their descriptions.
func NewSales(llmRouter *router.Router, prompts *prompt.Registry,
	registry *tool.Registry, opts ...Option) (*Base, error) {
	all := append([]Option{
		WithTools(registry.ByCategories(tool.CategoryPeople, tool.CategoryProjects)),
		WithAnalyzeFunc(analyzeSales),
	}, opts...)
	return NewBase(KindSales, llmRouter, prompts, all...)
}

func analyzeSales(text string, caller identity.Caller) Analysis {
	return Analysis{
		Intent:                 "sales_inquiry",
		TaskType:               "general",
		RequiresKnowledgeGraph: true,
	}
}

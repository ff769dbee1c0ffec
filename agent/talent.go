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
	"github.com/crewcall-ai/crewcall/prompt"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/tool"
)

// Talent task keyword sets, checked in order.
var talentTasks = []struct {
	taskType string
	keywords []string
}{
	{"talent_search", []string{"find", "crew", "talent", "available", "who can"}},
	{"skill_assessment", []string{"skill", "experience", "good at", "capable"}},
	{"project_matching", []string{"match", "fit for", "suited", "staff the"}},
	{"creative_matching", []string{"creative", "style", "aesthetic", "reference"}},
}

// NewTalent creates the talent agent. It carries the projects and
// CRM/people tools and classifies queries into talent task types by
// keyword.
func NewTalent(llmRouter *router.Router, prompts *prompt.Registry,
	registry *tool.Registry, opts ...Option) (*Base, error) {
	all := append([]Option{
		WithTools(registry.ByCategories(tool.CategoryProjects, tool.CategoryPeople)),
		WithAnalyzeFunc(analyzeTalent),
	}, opts...)
	return NewBase(KindTalent, llmRouter, prompts, all...)
}

func analyzeTalent(text string, caller identity.Caller) Analysis {
	lower := strings.ToLower(text)
	taskType := "general"
	for _, task := range talentTasks {
		if containsAnyKeyword(lower, task.keywords) {
			taskType = task.taskType
			break
		}
	}
	return Analysis{
		Intent:                 "talent_inquiry",
		TaskType:               taskType,
		TaskParams:             map[string]any{"query": text},
		RequiresKnowledgeGraph: taskType != "general",
	}
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

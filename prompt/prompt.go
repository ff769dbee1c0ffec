//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package prompt deterministically produces the system and task prompts
// used by each agent, filled from the caller context and task parameters.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/crewcall-ai/crewcall/model"
)

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// Template is the prompt template of one agent kind.
type Template struct {
	// System is the system prompt. It may carry {key} placeholders filled
	// from the caller context.
	System string
	// TaskPriming maps a task type to an optional priming message inserted
	// between the system and user messages. It may carry {key}
	// placeholders filled from the task parameters.
	TaskPriming map[string]string
}

const generalSystem = "You are a helpful assistant for an entertainment production company. " +
	"Answer clearly and concisely."

// Registry holds per-agent prompt templates. The zero registry is not
// usable; construct with NewRegistry, which seeds the built-in agents.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates a registry seeded with the built-in agent templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	r.Set("sales", Template{
		System: "You are a sales intelligence assistant for an entertainment production company. " +
			"You help {role} users understand clients, deals and business relationships. " +
			"Use the available tools to look up people, organizations and deals before answering. " +
			"Be direct and cite the data you found.",
	})
	r.Set("talent", Template{
		System: "You are a talent and crew intelligence assistant for an entertainment production company. " +
			"You help {role} users find crew, assess skills and match people to projects. " +
			"Use the available tools to search projects and collaborators before answering.",
		TaskPriming: map[string]string{
			"talent_search":     "The user is searching for talent or crew. Focus on availability, skills and relevant past projects for {concept}.",
			"skill_assessment":  "The user wants a skill assessment. Weigh the person's project history and collaborators.",
			"project_matching":  "The user wants people matched to a project. Prioritize crew with similar project experience.",
			"creative_matching": "The user wants creative matches. Lean on concept and reference lookups.",
		},
	})
	r.Set("analytics", Template{
		System: "You are an analytics assistant for an entertainment production company. " +
			"You help {role} users analyze performance, forecasts, vendors, teams and documents. " +
			"Ground every claim in tool results and say so when data is missing.",
		TaskPriming: map[string]string{
			"performance_analysis": "The user wants a performance analysis. Pull project insights and compare outcomes.",
			"forecasting":          "The user wants a forecast. Base projections on historical project data and flag uncertainty.",
			"document_analysis":    "The user wants document analysis. Search documents and quote the relevant snippets.",
			"vendor_analysis":      "The user wants a vendor analysis. List vendors per project and their track record.",
			"team_analysis":        "The user wants a team analysis. Examine team composition and collaboration history.",
		},
	})
	return r
}

// Set registers or replaces the template of an agent kind.
func (r *Registry) Set(agentKind string, template Template) {
	r.mu.Lock()
	r.templates[agentKind] = template
	r.mu.Unlock()
}

// FormatConversationPrompt builds the ordered message list for one turn:
// a system message, an optional task-priming message, and the user query.
// Unknown agent kinds get a minimal general-assistant system prompt.
// Missing context keys never fail; unresolved placeholders are dropped.
func (r *Registry) FormatConversationPrompt(agentKind, userQuery string,
	callerContext map[string]any, taskType string, taskParams map[string]any) []model.Message {
	r.mu.RLock()
	template, ok := r.templates[agentKind]
	r.mu.RUnlock()

	system := generalSystem
	if ok {
		system = expand(template.System, callerContext)
	}
	messages := []model.Message{model.NewSystemMessage(system)}
	if ok && taskType != "" {
		if priming, found := template.TaskPriming[taskType]; found {
			messages = append(messages, model.NewSystemMessage(expand(priming, taskParams)))
		}
	}
	return append(messages, model.NewUserMessage(userQuery))
}

// expand substitutes {key} placeholders from values and drops any that do
// not resolve.
func expand(template string, values map[string]any) string {
	out := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.Trim(match, "{}")
		if v, ok := values[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	})
	return strings.Join(strings.Fields(out), " ")
}

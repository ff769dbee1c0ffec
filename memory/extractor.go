//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"strings"
)

// Fact is one extracted semantic fact.
type Fact struct {
	// Content is the fact text.
	Content string `json:"content"`
	// FactType classifies the fact, e.g. preference or identity.
	FactType string `json:"fact_type"`
	// Confidence is the extractor's confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// Extractor derives semantic facts from a plain conversation transcript.
// An LLM-backed extractor can be plugged in; the rule extractor is the
// default.
type Extractor interface {
	// Extract returns the facts found in the transcript.
	Extract(ctx context.Context, transcript string) ([]Fact, error)
}

// Keyword families used by the rule extractor and importance assignment.
var (
	preferenceKeywords = []string{"prefer", "favorite", "like", "love", "hate", "dislike"}
	imperativeKeywords = []string{"always", "never", "must", "remember"}
	desireKeywords     = []string{"want", "need", "wish", "looking for"}
	identityKeywords   = []string{"i am", "i'm", "my name", "my role", "i work"}
)

// RuleExtractor is a keyword-rule fact extractor over user utterances.
type RuleExtractor struct{}

// NewRuleExtractor creates a rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// Extract implements the Extractor interface. Only lines spoken by the user
// are considered; each sentence is classified independently.
func (e *RuleExtractor) Extract(ctx context.Context, transcript string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var facts []Fact
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		content, ok := strings.CutPrefix(line, "user: ")
		if !ok {
			continue
		}
		for _, sentence := range splitSentences(content) {
			lower := strings.ToLower(sentence)
			switch {
			case containsAny(lower, identityKeywords):
				facts = append(facts, Fact{Content: sentence, FactType: "identity", Confidence: 0.95})
			case containsAny(lower, imperativeKeywords):
				facts = append(facts, Fact{Content: sentence, FactType: "requirement", Confidence: 0.9})
			case containsAny(lower, preferenceKeywords):
				facts = append(facts, Fact{Content: sentence, FactType: "preference", Confidence: 0.85})
			case containsAny(lower, desireKeywords):
				facts = append(facts, Fact{Content: sentence, FactType: "goal", Confidence: 0.75})
			}
		}
	}
	return facts, nil
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// AssignImportance maps an extracted fact to an importance level: Critical
// for preferences and imperatives, High for high confidence or desires,
// Medium otherwise.
func AssignImportance(fact Fact) Importance {
	lower := strings.ToLower(fact.Content)
	if containsAny(lower, preferenceKeywords) || containsAny(lower, imperativeKeywords) {
		return ImportanceCritical
	}
	if fact.Confidence > 0.9 || containsAny(lower, desireKeywords) {
		return ImportanceHigh
	}
	return ImportanceMedium
}

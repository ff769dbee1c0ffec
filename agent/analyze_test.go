//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/model"
)

func TestAnalyzeSalesDoesNotClassify(t *testing.T) {
	analysis := analyzeSales("Find the confidential Nike deal performance report", identity.Caller{})
	assert.Equal(t, "general", analysis.TaskType)
	assert.True(t, analysis.RequiresKnowledgeGraph)
}

func TestAnalyzeTalentClassification(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Find crew for the Nike Air Max commercial", "talent_search"},
		{"Is Maria capable of leading a large shoot?", "skill_assessment"},
		{"Who would be suited for the Adidas project?", "project_matching"},
		{"We want someone with a documentary aesthetic", "creative_matching"},
		{"Tell me about our roster", "general"},
	}
	for _, tt := range tests {
		analysis := analyzeTalent(tt.text, identity.Caller{})
		assert.Equal(t, tt.want, analysis.TaskType, "text: %s", tt.text)
	}
}

func TestAnalyzeAnalyticsClassification(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"How did the Q3 Nike campaign performance look?", "performance_analysis"},
		{"Forecast our revenue for next quarter", "forecasting"},
		{"Summarize the treatment for the Adidas spot", "document_analysis"},
		{"Which supplier handled post-production?", "vendor_analysis"},
		{"Review the staffing on the Pepsi shoot", "team_analysis"},
		{"Hello there", "general"},
	}
	for _, tt := range tests {
		analysis := analyzeAnalytics(tt.text, identity.Caller{})
		assert.Equal(t, tt.want, analysis.TaskType, "text: %s", tt.text)
	}
}

func TestAnalyzeAnalyticsAlwaysComplex(t *testing.T) {
	analysis := analyzeAnalytics("Hello", identity.Caller{})
	assert.Equal(t, model.ComplexityComplex, analysis.Complexity)
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleExtractorFindsUserFacts(t *testing.T) {
	transcript := "user: I prefer working with smaller crews. My name is Ana and I work in production.\n" +
		"assistant: Noted, smaller crews it is.\n" +
		"user: We need a director for the Nike spot!\n"
	facts, err := NewRuleExtractor().Extract(context.Background(), transcript)
	require.NoError(t, err)
	require.NotEmpty(t, facts)

	types := make(map[string]bool)
	for _, f := range facts {
		types[f.FactType] = true
		assert.Greater(t, f.Confidence, 0.0)
		assert.LessOrEqual(t, f.Confidence, 1.0)
	}
	assert.True(t, types["preference"])
	assert.True(t, types["identity"])
	assert.True(t, types["goal"])
}

func TestRuleExtractorIgnoresAssistantLines(t *testing.T) {
	transcript := "assistant: I always recommend checking the budget first.\n"
	facts, err := NewRuleExtractor().Extract(context.Background(), transcript)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestAssignImportance(t *testing.T) {
	assert.Equal(t, ImportanceCritical,
		AssignImportance(Fact{Content: "I prefer morning shoots", Confidence: 0.5}))
	assert.Equal(t, ImportanceCritical,
		AssignImportance(Fact{Content: "Never book studio B", Confidence: 0.5}))
	assert.Equal(t, ImportanceHigh,
		AssignImportance(Fact{Content: "Based in Lisbon", Confidence: 0.95}))
	assert.Equal(t, ImportanceHigh,
		AssignImportance(Fact{Content: "We need a colorist", Confidence: 0.5}))
	assert.Equal(t, ImportanceMedium,
		AssignImportance(Fact{Content: "Based in Lisbon", Confidence: 0.6}))
}

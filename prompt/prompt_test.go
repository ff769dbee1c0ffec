//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/model"
)

func TestFormatConversationPromptShape(t *testing.T) {
	r := NewRegistry()
	messages := r.FormatConversationPrompt("sales", "Do we work with CocaCola?",
		map[string]any{"role": "director"}, "", nil)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "director")
	assert.Equal(t, model.RoleUser, messages[1].Role)
	assert.Equal(t, "Do we work with CocaCola?", messages[1].Content)
}

func TestFormatConversationPromptTaskPriming(t *testing.T) {
	r := NewRegistry()
	messages := r.FormatConversationPrompt("talent", "Find crew for the Nike spot",
		map[string]any{"role": "leadership"}, "talent_search",
		map[string]any{"concept": "Nike Air Max"})
	require.Len(t, messages, 3)
	assert.Equal(t, model.RoleSystem, messages[1].Role)
	assert.Contains(t, messages[1].Content, "Nike Air Max")
	assert.Equal(t, model.RoleUser, messages[2].Role)
}

func TestFormatConversationPromptUnknownKind(t *testing.T) {
	r := NewRegistry()
	messages := r.FormatConversationPrompt("weather", "Will it rain?", nil, "anything", nil)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "helpful assistant")
}

func TestFormatConversationPromptMissingKeysDropped(t *testing.T) {
	r := NewRegistry()
	messages := r.FormatConversationPrompt("sales", "hello", nil, "", nil)
	require.Len(t, messages, 2)
	assert.NotContains(t, messages[0].Content, "{role}")
	assert.NotContains(t, messages[0].Content, "{")
}

func TestFormatConversationPromptUnknownTaskType(t *testing.T) {
	r := NewRegistry()
	messages := r.FormatConversationPrompt("talent", "hello",
		map[string]any{"role": "director"}, "not_a_task", nil)
	assert.Len(t, messages, 2)
}

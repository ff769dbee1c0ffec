//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/model/mock"
)

func TestLLMExtractorParsesModelOutput(t *testing.T) {
	m := mock.New("mock-model", mock.Step{Response: mock.TextResponse(
		`[{"content": "The user prefers documentary-style directors", "fact_type": "preference", "confidence": 0.9}]`,
	)})
	e := NewLLMExtractor(m)

	facts, err := e.Extract(context.Background(), "user: I prefer documentary-style directors.")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "preference", facts[0].FactType)
	assert.InDelta(t, 0.9, facts[0].Confidence, 1e-9)
}

func TestLLMExtractorToleratesFencedOutput(t *testing.T) {
	m := mock.New("mock-model", mock.Step{Response: mock.TextResponse(
		"```json\n[{\"content\": \"Works at Northwind\", \"fact_type\": \"identity\", \"confidence\": 0.95}]\n```",
	)})
	e := NewLLMExtractor(m)

	facts, err := e.Extract(context.Background(), "user: I work at Northwind.")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "identity", facts[0].FactType)
}

func TestLLMExtractorFallsBackOnModelError(t *testing.T) {
	m := mock.New("mock-model", mock.Step{Err: errors.New("rate limited")})
	e := NewLLMExtractor(m)

	facts, err := e.Extract(context.Background(), "user: I prefer morning shoots.")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "preference", facts[0].FactType)
}

func TestLLMExtractorFallsBackOnGarbageOutput(t *testing.T) {
	m := mock.New("mock-model", mock.Step{Response: mock.TextResponse("no facts here, sorry")})
	e := NewLLMExtractor(m)

	facts, err := e.Extract(context.Background(), "user: Always book Maria for beverage spots.")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "requirement", facts[0].FactType)
}

func TestLLMExtractorDropsEmptyAndClampsConfidence(t *testing.T) {
	m := mock.New("mock-model", mock.Step{Response: mock.TextResponse(
		`[{"content": "", "fact_type": "goal", "confidence": 0.5},
		  {"content": "Wants a bigger crew", "fact_type": "goal", "confidence": 7}]`,
	)})
	e := NewLLMExtractor(m)

	facts, err := e.Extract(context.Background(), "user: irrelevant")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "Wants a bigger crew", facts[0].Content)
	assert.InDelta(t, 0.5, facts[0].Confidence, 1e-9)
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/model/mock"
)

func newTestRouter(t *testing.T, opts ...Option) (*Router, *mock.Model, *mock.Model) {
	t.Helper()
	r := New(opts...)
	premium := mock.New("premium-model")
	budget := mock.New("budget-model")
	require.NoError(t, r.Register(Provider{
		Name:         "premium",
		Model:        premium,
		DefaultModel: "premium-model",
		MaxTokens:    4096,
		Temperature:  0.7,
		CostPerToken: 0.00003,
		Tier:         TierHighQuality,
	}))
	require.NoError(t, r.Register(Provider{
		Name:         "budget",
		Model:        budget,
		DefaultModel: "budget-model",
		MaxTokens:    2048,
		Temperature:  0.7,
		CostPerToken: 0.000002,
		Tier:         TierCostEfficient,
	}))
	return r, premium, budget
}

func TestRouterEmpty(t *testing.T) {
	r := New()
	_, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestRouterComplexPicksHighQuality(t *testing.T) {
	r, premium, budget := newTestRouter(t)
	rsp, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{
			model.NewUserMessage("Analyze and compare the Q3 campaign results"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "premium", rsp.Provider)
	assert.Equal(t, 1, premium.Calls())
	assert.Equal(t, 0, budget.Calls())
}

func TestRouterSimplePicksCostEfficient(t *testing.T) {
	r, premium, budget := newTestRouter(t)
	rsp, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "budget", rsp.Provider)
	assert.Equal(t, 0, premium.Calls())
	assert.Equal(t, 1, budget.Calls())
}

func TestRouterExplicitHintWins(t *testing.T) {
	r, premium, _ := newTestRouter(t)
	rsp, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
		Provider: "premium",
	})
	require.NoError(t, err)
	assert.Equal(t, "premium", rsp.Provider)
	assert.Equal(t, 1, premium.Calls())
}

func TestRouterUnknownHintFallsThrough(t *testing.T) {
	r, _, budget := newTestRouter(t)
	rsp, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
		Provider: "nonexistent",
	})
	require.NoError(t, err)
	assert.Equal(t, "budget", rsp.Provider)
	assert.Equal(t, 1, budget.Calls())
}

func TestRouterFallbackOneHop(t *testing.T) {
	r := New(WithFallback("budget", "premium"))
	premium := mock.New("premium-model")
	budget := mock.New("budget-model", mock.Step{Err: errors.New("rate limited")})
	require.NoError(t, r.Register(Provider{
		Name: "premium", Model: premium, Tier: TierHighQuality,
	}))
	require.NoError(t, r.Register(Provider{
		Name: "budget", Model: budget, Tier: TierCostEfficient,
	}))

	rsp, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "premium", rsp.Provider)
	assert.Equal(t, 1, budget.Calls())
	assert.Equal(t, 1, premium.Calls())

	budgetStats, ok := r.Stats("budget")
	require.True(t, ok)
	assert.Equal(t, int64(1), budgetStats.Requests)
	assert.Equal(t, int64(1), budgetStats.Failures)
}

func TestRouterAllProvidersFailed(t *testing.T) {
	primaryErr := errors.New("rate limited")
	fallbackErr := errors.New("timeout")
	r := New(WithFallback("budget", "premium"))
	require.NoError(t, r.Register(Provider{
		Name:  "premium",
		Model: mock.New("premium-model", mock.Step{Err: fallbackErr}),
		Tier:  TierHighQuality,
	}))
	require.NoError(t, r.Register(Provider{
		Name:  "budget",
		Model: mock.New("budget-model", mock.Step{Err: primaryErr}),
		Tier:  TierCostEfficient,
	}))

	_, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, fallbackErr)
}

func TestRouterNoFallbackConfigured(t *testing.T) {
	callErr := errors.New("rate limited")
	r := New()
	require.NoError(t, r.Register(Provider{
		Name:  "budget",
		Model: mock.New("budget-model", mock.Step{Err: callErr}),
		Tier:  TierCostEfficient,
	}))
	_, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, callErr)
}

func TestRouterStatsRecordedPerAttempt(t *testing.T) {
	r, _, budget := newTestRouter(t)
	for i := 0; i < 3; i++ {
		_, err := r.Complete(context.Background(), &model.Request{
			Messages: []model.Message{model.NewUserMessage("hello")},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, budget.Calls())

	snapshot, ok := r.Stats("budget")
	require.True(t, ok)
	assert.Equal(t, int64(3), snapshot.Requests)
	assert.Equal(t, int64(0), snapshot.Failures)
	assert.Equal(t, 1.0, snapshot.SuccessRate)
	assert.Greater(t, int64(snapshot.AvgLatency), int64(0))
}

func TestRouterCostEstimate(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rsp, err := r.Complete(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	// The mock reports 20 total tokens; budget charges 0.000002 per token.
	assert.InDelta(t, 20*0.000002, rsp.CostEstimate, 1e-12)
}

func TestRouterAppliesProviderDefaults(t *testing.T) {
	r, _, _ := newTestRouter(t)
	request := &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	}
	rsp, err := r.Complete(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, "budget-model", rsp.ModelUsed)
	// The caller's request is never mutated.
	assert.Empty(t, request.Model)
	assert.Nil(t, request.MaxTokens)
}

func TestRouterCompleteStream(t *testing.T) {
	r, _, _ := newTestRouter(t)
	stream, err := r.CompleteStream(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "budget", stream.Provider)

	var final *model.Response
	for chunk := range stream.Chunks {
		final = chunk
	}
	require.NotNil(t, final)
	assert.True(t, final.Done)
}

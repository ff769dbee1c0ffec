//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/agent"
	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/knowledge"
	"github.com/crewcall-ai/crewcall/memory"
	memstore "github.com/crewcall-ai/crewcall/memory/inmemory"
	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/model/mock"
	"github.com/crewcall-ai/crewcall/prompt"
	"github.com/crewcall-ai/crewcall/router"
	sessmem "github.com/crewcall-ai/crewcall/session/inmemory"
	"github.com/crewcall-ai/crewcall/tool"
)

type fixture struct {
	model    *mock.Model
	router   *router.Router
	registry *tool.Registry
	graph    *knowledge.StaticGraph
	sessions *sessmem.Service
	memories *memory.Manager
	memstore *memstore.Store
}

func newFixture(t *testing.T, steps ...mock.Step) *fixture {
	t.Helper()
	f := &fixture{
		model:    mock.New("mock-model", steps...),
		graph:    knowledge.NewStaticGraph(),
		registry: tool.NewRegistry(),
		sessions: sessmem.NewService(sessmem.WithSweepInterval(0)),
		memstore: memstore.NewStore(),
	}
	t.Cleanup(func() { f.sessions.Close() })
	f.router = router.New()
	require.NoError(t, f.router.Register(router.Provider{
		Name: "mock", Model: f.model, Tier: router.TierCostEfficient,
	}))
	require.NoError(t, knowledge.NewToolset(f.graph).Register(f.registry))
	f.memories = memory.NewManager(f.memstore, f.model)
	return f
}

func (f *fixture) newSales(t *testing.T) *agent.Base {
	t.Helper()
	a, err := agent.NewSales(f.router, prompt.NewRegistry(), f.registry,
		agent.WithSessionService(f.sessions),
		agent.WithMemoryManager(f.memories))
	require.NoError(t, err)
	return a
}

func director() identity.Caller {
	return identity.Caller{
		UserID:         "u1",
		Role:           identity.RoleDirector,
		MaxSensitivity: identity.SensitivityRestricted,
	}
}

func TestChatToolCallingTurn(t *testing.T) {
	f := newFixture(t,
		mock.Step{Response: mock.ToolCallResponse("get_organization_profile", `{"org_name":"CocaCola"}`)},
		mock.Step{Response: mock.TextResponse("Yes, CocaCola is a long-standing beverage client.")},
	)
	f.graph.HandleRecords("get_organization_profile", knowledge.Record{
		"name": "CocaCola", "industry": "beverages",
	})
	a := f.newSales(t)

	rsp, err := a.Chat(context.Background(), &agent.Request{
		Caller: director(),
		Text:   "Do we work with CocaCola?",
	})
	require.NoError(t, err)
	assert.Equal(t, agent.KindSales, rsp.AgentKind)
	assert.Contains(t, rsp.Content, "CocaCola")
	assert.NotEmpty(t, rsp.ConversationID)
	assert.Equal(t, "mock", rsp.Provider)
	assert.Empty(t, rsp.ToolErrors)

	// One tool-calling LLM call plus one synthesis call, never more.
	assert.Equal(t, 2, f.model.Calls())

	result, ok := rsp.ToolResults["get_organization_profile"].(knowledge.Record)
	require.True(t, ok)
	assert.Equal(t, true, result["found"])

	// The conversation was persisted with the turn's messages.
	conversation, ok2, err := f.sessions.GetLatest(context.Background(), rsp.ConversationID)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, "u1", conversation.UserID)
	roles := make([]model.Role, 0, len(conversation.Messages))
	for _, msg := range conversation.Messages {
		roles = append(roles, msg.Role)
	}
	assert.Contains(t, roles, model.RoleUser)
	assert.Contains(t, roles, model.RoleTool)
	assert.Contains(t, roles, model.RoleAssistant)

	// One episodic memory was stored for the turn.
	entries, err := f.memstore.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	episodic := 0
	for _, e := range entries {
		if e.Variant == memory.VariantEpisodic {
			episodic++
		}
	}
	assert.Equal(t, 1, episodic)
}

func TestChatDirectAnswerSkipsToolsNode(t *testing.T) {
	f := newFixture(t,
		mock.Step{Response: mock.TextResponse("We have three active Nike projects.")},
	)
	a := f.newSales(t)
	rsp, err := a.Chat(context.Background(), &agent.Request{
		Caller: director(),
		Text:   "How many Nike projects are active?",
	})
	require.NoError(t, err)
	assert.Equal(t, "We have three active Nike projects.", rsp.Content)
	assert.Equal(t, 1, f.model.Calls())
	assert.Empty(t, rsp.ToolResults)
}

func TestChatLLMFailureYieldsApologyAndStillPersists(t *testing.T) {
	f := newFixture(t,
		mock.Step{Err: errors.New("rate limited")},
	)
	a := f.newSales(t)
	rsp, err := a.Chat(context.Background(), &agent.Request{
		Caller:         director(),
		Text:           "Do we work with CocaCola?",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Contains(t, rsp.Content, "sorry")

	_, ok, err := f.sessions.GetLatest(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, ok, "update_memory must persist even after an LLM failure")
}

func TestChatToolFailureIsCollectedNotFatal(t *testing.T) {
	f := newFixture(t,
		mock.Step{Response: mock.ToolCallResponse("not_a_registered_tool", `{}`)},
		mock.Step{Response: mock.TextResponse("Partial answer.")},
	)
	a := f.newSales(t)
	rsp, err := a.Chat(context.Background(), &agent.Request{
		Caller: director(),
		Text:   "Do we work with CocaCola?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, rsp.ToolErrors)
	assert.Contains(t, rsp.ToolErrors[0], "unknown tool")
	// With zero tool results and no final assistant text, the turn
	// apologizes rather than failing.
	assert.NotEmpty(t, rsp.Content)
}

func TestChatVetoesToolsAboveSensitivityCeiling(t *testing.T) {
	f := newFixture(t,
		mock.Step{Response: mock.ToolCallResponse("get_deal_sourcer", `{"deal_name":"Nike Q3"}`)},
	)
	f.graph.HandleRecords("get_deal_sourcer", knowledge.Record{
		"sourcer": "Pat Doe", "commission": "confidential-figure",
	})
	a := f.newSales(t)

	rsp, err := a.Chat(context.Background(), &agent.Request{
		Caller: identity.Caller{
			UserID:         "u3",
			Role:           identity.RoleSalesperson,
			MaxSensitivity: identity.SensitivityInternal,
		},
		Text: "Who sourced the Nike deal?",
	})
	require.NoError(t, err)

	// The confidential tool never runs for an internal-ceiling caller.
	assert.NotContains(t, rsp.ToolResults, "get_deal_sourcer")
	assert.NotContains(t, rsp.Content, "Pat Doe")
	require.NotEmpty(t, rsp.ToolErrors)
	assert.Contains(t, rsp.ToolErrors[0], "insufficient_permissions")
	assert.EqualValues(t, 0, f.graph.Queries())
}

func TestChatCancellation(t *testing.T) {
	f := newFixture(t)
	a := f.newSales(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Chat(ctx, &agent.Request{
		Caller:         director(),
		Text:           "Do we work with CocaCola?",
		ConversationID: "conv-cancelled",
	})
	assert.ErrorIs(t, err, context.Canceled)

	// No state was persisted for the cancelled turn.
	_, ok, getErr := f.sessions.GetLatest(context.Background(), "conv-cancelled")
	require.NoError(t, getErr)
	assert.False(t, ok)
}

func TestChatContinuesConversationHistory(t *testing.T) {
	f := newFixture(t,
		mock.Step{Response: mock.TextResponse("First answer.")},
		mock.Step{Response: mock.TextResponse("Second answer.")},
	)
	a := f.newSales(t)
	first, err := a.Chat(context.Background(), &agent.Request{
		Caller: director(),
		Text:   "Do we work with CocaCola?",
	})
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), &agent.Request{
		Caller:         director(),
		Text:           "And with Pepsi?",
		ConversationID: first.ConversationID,
	})
	require.NoError(t, err)

	conversation, ok, err := f.sessions.GetLatest(context.Background(), first.ConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	// Two turns: user/assistant pairs in order, monotonically grown.
	require.Len(t, conversation.Messages, 4)
	assert.Equal(t, "Do we work with CocaCola?", conversation.Messages[0].Content)
	assert.Equal(t, "First answer.", conversation.Messages[1].Content)
	assert.Equal(t, "And with Pepsi?", conversation.Messages[2].Content)
	assert.Equal(t, "Second answer.", conversation.Messages[3].Content)
}

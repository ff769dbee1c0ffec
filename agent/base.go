//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/crewcall-ai/crewcall/graph"
	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/memory"
	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/prompt"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/security"
	"github.com/crewcall-ai/crewcall/session"
	"github.com/crewcall-ai/crewcall/telemetry"
	"github.com/crewcall-ai/crewcall/tool"
)

const apologyMessage = "I'm sorry, I wasn't able to process that request right now. Please try again."

// Graph node names.
const (
	nodeInitialize       = "initialize"
	nodeProcessQuery     = "process_query"
	nodeLLMWithTools     = "llm_with_tools"
	nodeTools            = "tools"
	nodeGenerateResponse = "generate_response"
	nodeUpdateMemory     = "update_memory"
)

// Base is the shared turn pipeline. The concrete agents differ only in
// their kind, analysis hook, bound tools and preferred provider.
type Base struct {
	kind     Kind
	analyze  AnalyzeFunc
	tools    map[string]tool.CallableTool
	router   *router.Router
	prompts  *prompt.Registry
	memories *memory.Manager
	queue    *memory.Queue
	sessions session.Service
	provider string

	pipeline *graph.Executable[*State]
}

// Option configures a Base agent.
type Option func(*Base)

// WithTools binds the callable tools exposed to the LLM.
func WithTools(tools map[string]tool.CallableTool) Option {
	return func(b *Base) {
		b.tools = tools
	}
}

// WithAnalyzeFunc sets the agent-specific query analysis hook.
func WithAnalyzeFunc(fn AnalyzeFunc) Option {
	return func(b *Base) {
		b.analyze = fn
	}
}

// WithPreferredProvider sets the preferred-provider hint passed to the
// router on every LLM call.
func WithPreferredProvider(name string) Option {
	return func(b *Base) {
		b.provider = name
	}
}

// WithMemoryManager enables memory context loading and the turn write path.
func WithMemoryManager(m *memory.Manager) Option {
	return func(b *Base) {
		b.memories = m
	}
}

// WithMemoryQueue defers fact extraction to the background queue instead of
// running it inline during update_memory.
func WithMemoryQueue(q *memory.Queue) Option {
	return func(b *Base) {
		b.queue = q
	}
}

// WithSessionService enables conversation persistence between turns.
func WithSessionService(s session.Service) Option {
	return func(b *Base) {
		b.sessions = s
	}
}

// NewBase assembles the turn pipeline for an agent kind.
func NewBase(kind Kind, llmRouter *router.Router, prompts *prompt.Registry, opts ...Option) (*Base, error) {
	b := &Base{
		kind:    kind,
		router:  llmRouter,
		prompts: prompts,
		analyze: func(string, identity.Caller) Analysis { return Analysis{TaskType: "general"} },
	}
	for _, opt := range opts {
		opt(b)
	}

	g := graph.New[*State]().
		AddNode(nodeInitialize, b.initialize).
		AddNode(nodeProcessQuery, b.processQuery).
		AddNode(nodeLLMWithTools, b.llmWithTools).
		AddNode(nodeTools, b.executeTools).
		AddNode(nodeGenerateResponse, b.generateResponse).
		AddNode(nodeUpdateMemory, b.updateMemory).
		AddEdge(nodeInitialize, nodeProcessQuery).
		AddEdge(nodeProcessQuery, nodeLLMWithTools).
		AddBranch(nodeLLMWithTools, func(s *State) string {
			if last := s.lastMessage(); last != nil && len(last.ToolCalls) > 0 {
				return nodeTools
			}
			return nodeGenerateResponse
		}).
		AddEdge(nodeTools, nodeGenerateResponse).
		AddEdge(nodeGenerateResponse, nodeUpdateMemory).
		AddEdge(nodeUpdateMemory, graph.End).
		SetEntryPoint(nodeInitialize).
		SetFinalizer(nodeUpdateMemory)
	pipeline, err := g.Compile()
	if err != nil {
		return nil, err
	}
	b.pipeline = pipeline
	return b, nil
}

// Kind implements the Agent interface.
func (b *Base) Kind() Kind {
	return b.kind
}

// Chat implements the Agent interface: it runs one full turn through the
// pipeline. Node errors surface in the response as an apology, not as a
// call error; only cancellation returns one.
func (b *Base) Chat(ctx context.Context, request *Request) (*Response, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "agent.chat",
		trace.WithAttributes(telemetry.KeyAgent.String(string(b.kind))))
	defer span.End()

	state := &State{
		Caller:         request.Caller,
		ConversationID: request.ConversationID,
		Query:          request.Text,
		ToolResults:    make(map[string]any),
	}
	if err := b.pipeline.Execute(ctx, state); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warnf("agent %s: turn finished with error: %v", b.kind, err)
	}

	content := lastAssistantContent(state)
	if content == "" {
		content = apologyMessage
	}
	return &Response{
		Content:        content,
		ConversationID: state.ConversationID,
		AgentKind:      b.kind,
		TaskType:       state.Analysis.TaskType,
		ToolResults:    state.ToolResults,
		ToolErrors:     state.ToolErrors,
		Provider:       state.Provider,
		Timestamp:      time.Now(),
	}, nil
}

// initialize assigns a conversation id when absent, loads prior history and
// memory context, and resets the per-turn accumulators.
func (b *Base) initialize(ctx context.Context, state *State) error {
	if state.ConversationID == "" {
		state.ConversationID = uuid.NewString()
	}
	state.ToolResults = make(map[string]any)
	state.ToolErrors = nil

	if b.memories != nil {
		memCtx, err := b.memories.BuildContext(ctx, state.Caller.UserID, state.Query,
			state.Caller.MaxSensitivity)
		if err != nil {
			log.Warnf("agent %s: memory context load failed: %v", b.kind, err)
		} else {
			state.MemoryContext = memCtx
		}
	}

	state.UpdatedAt = time.Now()
	return nil
}

// processQuery delegates to the agent's analysis hook, stores the result
// and assembles the turn's message log: system prompt, optional task
// priming, memory context, prior history, then the new user message.
func (b *Base) processQuery(ctx context.Context, state *State) error {
	state.Analysis = b.analyze(state.Query, state.Caller)

	callerContext := map[string]any{
		"role":    string(state.Caller.Role),
		"user_id": state.Caller.UserID,
	}
	messages := b.prompts.FormatConversationPrompt(string(b.kind), state.Query,
		callerContext, state.Analysis.TaskType, state.Analysis.TaskParams)
	head := messages[:len(messages)-1]
	userMessage := messages[len(messages)-1]

	state.Messages = append(state.Messages, head...)
	if memoryPrompt := formatMemoryContext(state.MemoryContext); memoryPrompt != "" {
		state.Messages = append(state.Messages, model.NewSystemMessage(memoryPrompt))
	}
	if b.sessions != nil {
		if prior, ok, err := b.sessions.GetLatest(ctx, state.ConversationID); err != nil {
			log.Warnf("agent %s: session load failed: %v", b.kind, err)
		} else if ok {
			state.Messages = append(state.Messages, prior.Messages...)
		}
	}
	// Everything before the new user message belongs to prior turns or
	// prompt scaffolding, not to this turn.
	state.HistoryLen = len(state.Messages)
	state.Messages = append(state.Messages, userMessage)

	if state.Analysis.Complexity == "" {
		state.Analysis.Complexity = router.AssessComplexity(state.Messages)
	}
	state.UpdatedAt = time.Now()
	return nil
}

// llmWithTools issues the turn's first LLM call with the agent's tool
// bindings. Provider errors append an apology instead of failing the turn.
func (b *Base) llmWithTools(ctx context.Context, state *State) error {
	request := &model.Request{
		Messages:   state.Messages,
		Provider:   b.provider,
		Complexity: state.Analysis.Complexity,
	}
	if len(b.tools) > 0 {
		request.Tools = b.tools
	}
	rsp, err := b.router.Complete(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("agent %s: llm call failed: %v", b.kind, err)
		state.Messages = append(state.Messages, model.NewAssistantMessage(apologyMessage))
		state.UpdatedAt = time.Now()
		return nil
	}
	state.Provider = rsp.Provider
	state.Messages = append(state.Messages, rsp.AssistantMessage())
	state.UpdatedAt = time.Now()
	return nil
}

// executeTools runs the requested tool calls in emission order. Failures
// are collected per call and never abort the loop.
func (b *Base) executeTools(ctx context.Context, state *State) error {
	last := state.lastMessage()
	if last == nil {
		return nil
	}
	for _, call := range last.ToolCalls {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := call.Function.Name
		bound, ok := b.tools[name]
		if !ok {
			state.ToolErrors = append(state.ToolErrors, fmt.Sprintf("%s: unknown tool", name))
			continue
		}
		// The caller's sensitivity ceiling is enforced before the call is
		// made, so above-ceiling data is never fetched into the turn.
		if decl := bound.Declaration(); decl.Sensitivity.Exceeds(state.Caller.MaxSensitivity) {
			state.ToolErrors = append(state.ToolErrors,
				fmt.Sprintf("%s: %s", name, security.ReasonInsufficientPermissions))
			state.Messages = append(state.Messages,
				model.NewToolMessage(call.ID, name,
					fmt.Sprintf(`{"found":false,"error":%q}`, security.ReasonInsufficientPermissions)))
			continue
		}
		toolCtx, span := telemetry.Tracer.Start(ctx, "agent.tool",
			trace.WithAttributes(telemetry.KeyTool.String(name)))
		result, err := bound.Call(toolCtx, call.Function.Arguments)
		span.End()
		if err != nil {
			state.ToolErrors = append(state.ToolErrors, fmt.Sprintf("%s: %v", name, err))
			state.Messages = append(state.Messages,
				model.NewToolMessage(call.ID, name,
					fmt.Sprintf(`{"found":false,"error":%q}`, err.Error())))
			continue
		}
		payload, err := json.Marshal(result)
		if err != nil {
			state.ToolErrors = append(state.ToolErrors, fmt.Sprintf("%s: marshal result: %v", name, err))
			continue
		}
		state.ToolResults[name] = result
		state.Messages = append(state.Messages, model.NewToolMessage(call.ID, name, string(payload)))
	}
	state.UpdatedAt = time.Now()
	return nil
}

// generateResponse produces the final assistant message: keep an already
// complete assistant reply, otherwise synthesize from tool results with a
// second, tool-free LLM call, otherwise apologize.
func (b *Base) generateResponse(ctx context.Context, state *State) error {
	last := state.lastMessage()
	if last != nil && last.Role == model.RoleAssistant &&
		last.Content != "" && len(last.ToolCalls) == 0 {
		return nil
	}
	if len(state.ToolResults) == 0 {
		state.Messages = append(state.Messages, model.NewAssistantMessage(apologyMessage))
		state.UpdatedAt = time.Now()
		return nil
	}

	synthesis := model.NewUserMessage(FormatSynthesisPrompt(state.Query, state.ToolResults))
	request := &model.Request{
		Messages:   append(append([]model.Message{}, state.Messages...), synthesis),
		Provider:   b.provider,
		Complexity: state.Analysis.Complexity,
	}
	rsp, err := b.router.Complete(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("agent %s: synthesis call failed: %v", b.kind, err)
		state.Messages = append(state.Messages, model.NewAssistantMessage(apologyMessage))
		state.UpdatedAt = time.Now()
		return nil
	}
	state.Provider = rsp.Provider
	content := rsp.AssistantMessage().Content
	if content == "" {
		content = apologyMessage
	}
	state.Messages = append(state.Messages, model.NewAssistantMessage(content))
	state.UpdatedAt = time.Now()
	return nil
}

// updateMemory persists the conversation and feeds the turn to the memory
// write path. Persistence failures are logged, never returned.
func (b *Base) updateMemory(ctx context.Context, state *State) error {
	turnStart := min(state.HistoryLen, len(state.Messages))
	turnMessages := append([]model.Message(nil), state.Messages[turnStart:]...)

	if b.sessions != nil {
		conversation := &session.Conversation{
			ID:         state.ConversationID,
			UserID:     state.Caller.UserID,
			Messages:   stripSystemMessages(state.Messages),
			Checkpoint: nodeUpdateMemory,
			AgentKinds: []string{string(b.kind)},
		}
		if err := b.sessions.Put(ctx, conversation); err != nil {
			log.Warnf("agent %s: session persist failed: %v", b.kind, err)
		}
	}

	if b.memories == nil {
		return nil
	}
	turn := memory.Turn{
		UserID:         state.Caller.UserID,
		ConversationID: state.ConversationID,
		AgentKind:      string(b.kind),
		TaskType:       state.Analysis.TaskType,
		Messages:       turnMessages,
		Sensitivity:    state.Caller.MaxSensitivity,
	}
	if b.queue != nil {
		accepted := b.queue.Enqueue(memory.Task{
			Type:     memory.TaskMemoryExtraction,
			Priority: 2,
			UserID:   turn.UserID,
			Execute: func(taskCtx context.Context) error {
				return b.memories.ProcessTurn(taskCtx, turn)
			},
		})
		if !accepted {
			// Extraction was shed under backpressure; the episodic record
			// is still stored inline.
			if err := b.memories.ProcessTurn(ctx, memory.Turn{
				UserID:         turn.UserID,
				ConversationID: turn.ConversationID,
				AgentKind:      turn.AgentKind,
				Messages:       turn.Messages,
				Sensitivity:    turn.Sensitivity,
				SkipExtraction: true,
			}); err != nil {
				log.Warnf("agent %s: memory write failed: %v", b.kind, err)
			}
			return nil
		}
		// Dedup the user's memories after the extraction lands.
		b.queue.Enqueue(memory.Task{
			Type:     memory.TaskMemoryConsolidation,
			Priority: 5,
			UserID:   turn.UserID,
			Execute: func(taskCtx context.Context) error {
				_, err := b.memories.Consolidate(taskCtx, turn.UserID)
				return err
			},
		})
		return nil
	}
	if err := b.memories.ProcessTurn(ctx, turn); err != nil {
		log.Warnf("agent %s: memory write failed: %v", b.kind, err)
	}
	return nil
}

// FormatSynthesisPrompt builds the tool-free synthesis prompt from the
// original query and the gathered tool results.
func FormatSynthesisPrompt(query string, toolResults map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the user's question: %q\n", query)
	b.WriteString("I have gathered the following information:\n")
	for _, name := range sortedKeys(toolResults) {
		payload, err := json.Marshal(toolResults[name])
		if err != nil {
			payload = []byte(fmt.Sprintf("%v", toolResults[name]))
		}
		fmt.Fprintf(&b, "**%s**: %s\n", name, payload)
	}
	b.WriteString("Please provide a comprehensive and helpful response to the user's question using this information.")
	return b.String()
}

func formatMemoryContext(memCtx *memory.Context) string {
	if memCtx == nil {
		return ""
	}
	var parts []string
	if len(memCtx.SemanticFacts) > 0 {
		parts = append(parts, "Known facts about this user:")
		for _, r := range memCtx.SemanticFacts {
			parts = append(parts, "- "+r.Entry.Content)
		}
	}
	if len(memCtx.PastInteractions) > 0 {
		parts = append(parts, "Relevant past interactions:")
		for _, r := range memCtx.PastInteractions {
			parts = append(parts, "- "+r.Entry.Content)
		}
	}
	if len(memCtx.BehavioralPatterns) > 0 {
		parts = append(parts, "Known behavioral patterns:")
		for _, r := range memCtx.BehavioralPatterns {
			parts = append(parts, "- "+r.Entry.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func lastAssistantContent(state *State) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.Role == model.RoleAssistant && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

func stripSystemMessages(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

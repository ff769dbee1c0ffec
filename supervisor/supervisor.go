//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package supervisor classifies incoming queries, fans out to one or more
// specialized agents and synthesizes their outputs into a single reply.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewcall-ai/crewcall/agent"
	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/security"
	"github.com/crewcall-ai/crewcall/session"
	"github.com/crewcall-ai/crewcall/telemetry"
)

// Strategy is the fan-out mode of one turn.
type Strategy string

// Strategies.
const (
	StrategySingleAgent Strategy = "single_agent"
	StrategyMultiAgent  Strategy = "multi_agent"
)

// Response source types revealed to the caller.
const (
	SourceSupervisorAgent  = "supervisor_agent"
	SourceLLMDirect        = "llm_direct"
	SourceSecurityFiltered = "security_filtered"
	SourceMockFallback     = "mock_fallback"
)

const (
	multiAgentThreshold    = 0.3
	defaultSingleThreshold = 0.7
	defaultTurnTimeout     = 60 * time.Second

	securityRefusal = "I'm sorry, but your role does not permit access to that information. " +
		"Please contact your administrator if you believe this is an error."
	timeoutMessage = "I'm sorry, that request took too long to process. Please try again " +
		"or narrow the question."
)

// Domain keyword sets used for routing classification. A domain's score is
// the fraction of its keywords present in the query.
var domainKeywords = map[agent.Kind][]string{
	agent.KindSales:     {"sales", "deal", "client"},
	agent.KindTalent:    {"talent", "crew", "casting"},
	agent.KindAnalytics: {"analyze", "performance", "report"},
}

// RoutingDecision is the classification outcome attached to every response.
type RoutingDecision struct {
	// Strategy is the fan-out mode.
	Strategy Strategy `json:"strategy"`
	// Primary is the highest-scoring agent kind.
	Primary agent.Kind `json:"primary"`
	// Participants lists the kinds invoked for the turn.
	Participants []agent.Kind `json:"participants"`
	// Scores is the per-domain classification score.
	Scores map[agent.Kind]float64 `json:"scores,omitempty"`
}

// AgentsUsed returns the participant kinds as strings.
func (d RoutingDecision) AgentsUsed() []string {
	out := make([]string, 0, len(d.Participants))
	for _, kind := range d.Participants {
		out = append(out, string(kind))
	}
	return out
}

// Response is the final outcome of one supervised turn.
type Response struct {
	// Content is the assistant reply.
	Content string `json:"content"`
	// ConversationID is the canonical conversation id of the turn.
	ConversationID string `json:"conversation_id"`
	// Source reveals how the response was produced.
	Source string `json:"source"`
	// Routing is the classification outcome.
	Routing RoutingDecision `json:"routing"`
	// Flagged reports that the security filter sanitized the query.
	Flagged bool `json:"flagged,omitempty"`
	// ToolResults aggregates tool outputs when a single agent ran.
	ToolResults map[string]any `json:"tool_results,omitempty"`
	// Provider is the provider that served the final content, if known.
	Provider string `json:"provider,omitempty"`
	// Timestamp is when the turn completed.
	Timestamp time.Time `json:"timestamp"`
}

// Supervisor orchestrates agents behind a security filter.
type Supervisor struct {
	agents   map[agent.Kind]agent.Agent
	filter   *security.Filter
	router   *router.Router
	sessions session.Service

	singleThreshold float64
	turnTimeout     time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSecurityFilter replaces the default security filter.
func WithSecurityFilter(filter *security.Filter) Option {
	return func(s *Supervisor) {
		s.filter = filter
	}
}

// WithSessionService enables canonical-log persistence for filtered and
// multi-agent turns.
func WithSessionService(sessions session.Service) Option {
	return func(s *Supervisor) {
		s.sessions = sessions
	}
}

// WithSingleAgentThreshold overrides the single-agent score threshold,
// 0.7 by default.
func WithSingleAgentThreshold(threshold float64) Option {
	return func(s *Supervisor) {
		if threshold > 0 {
			s.singleThreshold = threshold
		}
	}
}

// WithTurnTimeout overrides the turn wall-clock ceiling, 60s by default.
func WithTurnTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) {
		if timeout > 0 {
			s.turnTimeout = timeout
		}
	}
}

// New creates a supervisor over the given agents. The router serves the
// multi-agent synthesis call and the llm-direct fallback.
func New(llmRouter *router.Router, agents []agent.Agent, opts ...Option) *Supervisor {
	s := &Supervisor{
		agents:          make(map[agent.Kind]agent.Agent, len(agents)),
		filter:          security.NewFilter(),
		router:          llmRouter,
		singleThreshold: defaultSingleThreshold,
		turnTimeout:     defaultTurnTimeout,
	}
	for _, a := range agents {
		s.agents[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify computes the routing decision for a query.
func (s *Supervisor) Classify(query *identity.Query) RoutingDecision {
	if query.PreferredAgent != "" {
		kind := agent.Kind(query.PreferredAgent)
		if _, ok := s.agents[kind]; ok {
			return RoutingDecision{
				Strategy:     StrategySingleAgent,
				Primary:      kind,
				Participants: []agent.Kind{kind},
			}
		}
	}

	lower := strings.ToLower(query.Text)
	scores := make(map[agent.Kind]float64, len(domainKeywords))
	for kind, keywords := range domainKeywords {
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		scores[kind] = float64(matches) / float64(len(keywords))
	}

	best := agent.KindSales
	bestScore := -1.0
	crossing := 0
	for _, kind := range agent.Kinds {
		score := scores[kind]
		if score >= multiAgentThreshold {
			crossing++
		}
		if score > bestScore {
			best, bestScore = kind, score
		}
	}

	multi := crossing > 1 || query.Mode == identity.SelectionMulti
	if multi && query.Mode != identity.SelectionSingle {
		participants := make([]agent.Kind, 0, len(s.agents))
		for _, kind := range agent.Kinds {
			if _, ok := s.agents[kind]; ok {
				participants = append(participants, kind)
			}
		}
		return RoutingDecision{
			Strategy:     StrategyMultiAgent,
			Primary:      best,
			Participants: participants,
			Scores:       scores,
		}
	}
	if bestScore < s.singleThreshold {
		best = agent.KindSales
	}
	return RoutingDecision{
		Strategy:     StrategySingleAgent,
		Primary:      best,
		Participants: []agent.Kind{best},
		Scores:       scores,
	}
}

// Handle runs one supervised turn end to end: security vetting,
// classification, agent execution and synthesis. Every turn terminates
// with either a response or an error; the 60s ceiling degrades to a
// graceful timeout response.
func (s *Supervisor) Handle(ctx context.Context, query *identity.Query) (*Response, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "supervisor.handle")
	defer span.End()

	conversationID := query.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	decision := s.filter.Check(query.Text, query.Caller)
	if !decision.Allowed {
		return s.denied(ctx, query, conversationID, decision.Reason), nil
	}
	text := decision.Query

	if s.sessions != nil {
		unlock, err := s.sessions.Lock(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	routing := s.Classify(query)
	span.SetAttributes(telemetry.KeyStrategy.String(string(routing.Strategy)))

	turnCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	var rsp *Response
	var err error
	switch {
	case len(s.agents) == 0:
		rsp, err = s.llmDirect(turnCtx, text, conversationID)
	case routing.Strategy == StrategyMultiAgent:
		rsp, err = s.multiAgent(turnCtx, query.Caller, text, conversationID, routing)
	default:
		rsp, err = s.singleAgent(turnCtx, query.Caller, text, conversationID, routing)
	}
	if err != nil {
		if ctx.Err() != nil {
			// The caller is gone; no graceful response is owed.
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warnf("turn %s hit the wall-clock ceiling", conversationID)
			return &Response{
				Content:        timeoutMessage,
				ConversationID: conversationID,
				Source:         SourceSupervisorAgent,
				Routing:        routing,
				Flagged:        decision.Flagged,
				Timestamp:      time.Now(),
			}, nil
		}
		return nil, err
	}
	rsp.Flagged = decision.Flagged
	return rsp, nil
}

// denied produces the refusal response and appends the exchange to the
// conversation log. No LLM or tool call is made.
func (s *Supervisor) denied(ctx context.Context, query *identity.Query,
	conversationID, reason string) *Response {
	if s.sessions != nil {
		conversation := &session.Conversation{
			ID:     conversationID,
			UserID: query.Caller.UserID,
		}
		if prior, ok, err := s.sessions.GetLatest(ctx, conversationID); err == nil && ok {
			conversation = prior
		}
		conversation.Messages = append(conversation.Messages,
			model.NewUserMessage(query.Text),
			model.NewAssistantMessage(securityRefusal))
		if err := s.sessions.Put(ctx, conversation); err != nil {
			log.Warnf("persist refused turn failed: %v", err)
		}
	}
	log.Infof("security filter denied query for user %s: %s", query.Caller.UserID, reason)
	return &Response{
		Content:        securityRefusal,
		ConversationID: conversationID,
		Source:         SourceSecurityFiltered,
		Routing:        RoutingDecision{Strategy: StrategySingleAgent},
		Timestamp:      time.Now(),
	}
}

func (s *Supervisor) singleAgent(ctx context.Context, caller identity.Caller,
	text, conversationID string, routing RoutingDecision) (*Response, error) {
	a, ok := s.agents[routing.Primary]
	if !ok {
		return nil, fmt.Errorf("agent %s not registered", routing.Primary)
	}
	rsp, err := a.Chat(ctx, &agent.Request{
		Caller:         caller,
		Text:           text,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		Content:        rsp.Content,
		ConversationID: rsp.ConversationID,
		Source:         SourceSupervisorAgent,
		Routing:        routing,
		ToolResults:    rsp.ToolResults,
		Provider:       rsp.Provider,
		Timestamp:      time.Now(),
	}, nil
}

// multiAgent fans the turn out to every registered agent in parallel under
// scoped conversation ids, then merges the successful outputs.
func (s *Supervisor) multiAgent(ctx context.Context, caller identity.Caller,
	text, conversationID string, routing RoutingDecision) (*Response, error) {
	type outcome struct {
		kind agent.Kind
		rsp  *agent.Response
		err  error
	}
	results := make(chan outcome, len(routing.Participants))
	var wg sync.WaitGroup
	for _, kind := range routing.Participants {
		a := s.agents[kind]
		wg.Add(1)
		go func(kind agent.Kind, a agent.Agent) {
			defer wg.Done()
			rsp, err := a.Chat(ctx, &agent.Request{
				Caller:         caller,
				Text:           text,
				ConversationID: fmt.Sprintf("%s_%s", conversationID, kind),
			})
			results <- outcome{kind: kind, rsp: rsp, err: err}
		}(kind, a)
	}
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs := make(map[agent.Kind]*agent.Response)
	for out := range results {
		if out.err != nil {
			log.Warnf("agent %s failed during fan-out: %v", out.kind, out.err)
			continue
		}
		outputs[out.kind] = out.rsp
	}

	switch len(outputs) {
	case 0:
		// Everyone failed; degrade to a single sales run.
		fallback := routing
		fallback.Strategy = StrategySingleAgent
		fallback.Primary = agent.KindSales
		fallback.Participants = []agent.Kind{agent.KindSales}
		return s.singleAgent(ctx, caller, text, conversationID, fallback)
	case 1:
		for kind, rsp := range outputs {
			routing.Participants = []agent.Kind{kind}
			merged := &Response{
				Content:        rsp.Content,
				ConversationID: conversationID,
				Source:         SourceSupervisorAgent,
				Routing:        routing,
				ToolResults:    rsp.ToolResults,
				Provider:       rsp.Provider,
				Timestamp:      time.Now(),
			}
			s.persistCanonical(ctx, caller, conversationID, text, merged.Content, routing)
			return merged, nil
		}
	}

	content, provider := s.synthesize(ctx, text, outputs)
	used := make([]agent.Kind, 0, len(outputs))
	for _, kind := range agent.Kinds {
		if _, ok := outputs[kind]; ok {
			used = append(used, kind)
		}
	}
	routing.Participants = used
	merged := &Response{
		Content:        content,
		ConversationID: conversationID,
		Source:         SourceSupervisorAgent,
		Routing:        routing,
		Provider:       provider,
		Timestamp:      time.Now(),
	}
	s.persistCanonical(ctx, caller, conversationID, text, content, routing)
	return merged, nil
}

// synthesize merges the per-agent outputs with one LLM call. On failure it
// degrades to labeled concatenation.
func (s *Supervisor) synthesize(ctx context.Context, query string,
	outputs map[agent.Kind]*agent.Response) (string, string) {
	kinds := make([]agent.Kind, 0, len(outputs))
	for kind := range outputs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: %q\n", query)
	b.WriteString("Multiple specialist agents each produced an answer:\n")
	for _, kind := range kinds {
		fmt.Fprintf(&b, "[%s]\n%s\n", kind, outputs[kind].Content)
	}
	b.WriteString("Combine these perspectives into one coherent, non-repetitive answer for the user.")

	rsp, err := s.router.Complete(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("You merge specialist answers into a single clear response."),
			model.NewUserMessage(b.String()),
		},
		Complexity: model.ComplexityComplex,
	})
	if err == nil {
		if content := rsp.AssistantMessage().Content; content != "" {
			return content, rsp.Provider
		}
	} else {
		log.Warnf("multi-agent synthesis failed, concatenating outputs: %v", err)
	}

	var out strings.Builder
	for i, kind := range kinds {
		if i > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "**%s Perspective:**\n%s", titleKind(kind), outputs[kind].Content)
	}
	return out.String(), ""
}

// persistCanonical appends exactly one user/assistant exchange for the
// turn to the canonical conversation log.
func (s *Supervisor) persistCanonical(ctx context.Context, caller identity.Caller,
	conversationID, userText, assistantText string, routing RoutingDecision) {
	if s.sessions == nil || ctx.Err() != nil {
		return
	}
	conversation := &session.Conversation{
		ID:     conversationID,
		UserID: caller.UserID,
	}
	if prior, ok, err := s.sessions.GetLatest(ctx, conversationID); err == nil && ok {
		conversation = prior
	}
	conversation.Messages = append(conversation.Messages,
		model.NewUserMessage(userText),
		model.NewAssistantMessage(assistantText))
	conversation.AgentKinds = routing.AgentsUsed()
	if err := s.sessions.Put(ctx, conversation); err != nil {
		log.Warnf("persist canonical conversation failed: %v", err)
	}
}

// llmDirect answers without any agent, used when none are registered.
func (s *Supervisor) llmDirect(ctx context.Context, text, conversationID string) (*Response, error) {
	rsp, err := s.router.Complete(ctx, &model.Request{
		Messages: []model.Message{model.NewUserMessage(text)},
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		Content:        rsp.AssistantMessage().Content,
		ConversationID: conversationID,
		Source:         SourceLLMDirect,
		Provider:       rsp.Provider,
		Timestamp:      time.Now(),
	}, nil
}

func titleKind(kind agent.Kind) string {
	switch kind {
	case agent.KindSales:
		return "Sales"
	case agent.KindTalent:
		return "Talent"
	case agent.KindAnalytics:
		return "Analytics"
	default:
		return string(kind)
	}
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package router routes LLM requests across registered providers with
// complexity-aware selection, one-hop failover and per-provider statistics.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/telemetry"
)

var (
	// ErrNoProvidersAvailable is returned when no provider is registered.
	ErrNoProvidersAvailable = errors.New("no providers available")
	// ErrAllProvidersFailed is returned when the primary and its fallback
	// both failed.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrProviderNotFound is returned when a named provider is not registered.
	ErrProviderNotFound = errors.New("provider not found")
)

// Tier classifies a provider for complexity-aware selection.
type Tier string

// Provider tiers.
const (
	// TierHighQuality marks the provider preferred for complex queries.
	TierHighQuality Tier = "high_quality"
	// TierCostEfficient marks the default provider for everything else.
	TierCostEfficient Tier = "cost_efficient"
)

// Provider is a registration entry in the router's provider table.
type Provider struct {
	// Name is the provider identifier used for hints, fallbacks and stats.
	Name string
	// Model is the provider client.
	Model model.Model
	// DefaultModel overrides the model name on requests that carry none.
	DefaultModel string
	// MaxTokens is the default completion cap applied when the request
	// carries none.
	MaxTokens int
	// Temperature is the default temperature applied when the request
	// carries none.
	Temperature float64
	// CostPerToken is the per-token cost used for cost estimation.
	CostPerToken float64
	// Tier classifies the provider for selection.
	Tier Tier
}

// Response is an LLM response annotated with provenance.
type Response struct {
	*model.Response

	// Provider is the identifier of the provider that produced the response.
	Provider string `json:"provider_used"`
	// ModelUsed is the model name that produced the response.
	ModelUsed string `json:"model_used"`
	// Latency is the wall-clock duration of the successful attempt.
	Latency time.Duration `json:"latency"`
	// CostEstimate is tokens-used x cost-per-token for the provider.
	CostEstimate float64 `json:"cost_estimate"`
}

// Stream is a streaming LLM response annotated with provenance.
type Stream struct {
	// Chunks is the lazy, finite, non-restartable delta sequence. It
	// terminates with a final response carrying token usage.
	Chunks <-chan *model.Response
	// Provider is the identifier of the provider serving the stream.
	Provider string
	// ModelUsed is the model name serving the stream.
	ModelUsed string
}

type entry struct {
	provider Provider
	stats    *Stats
}

// Router selects a provider per request and issues the call with one-hop
// failover.
type Router struct {
	mu        sync.RWMutex
	providers map[string]*entry
	fallbacks map[string]string

	callTimeout time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithFallback maps a primary provider to its alternate. On any primary
// error the alternate is tried exactly once.
func WithFallback(primary, alternate string) Option {
	return func(r *Router) {
		r.fallbacks[primary] = alternate
	}
}

// WithCallTimeout sets the per-call timeout, 30s by default.
func WithCallTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.callTimeout = timeout
		}
	}
}

// New creates a router with the given options.
func New(opts ...Option) *Router {
	r := &Router{
		providers:   make(map[string]*entry),
		fallbacks:   make(map[string]string),
		callTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider to the router's table.
func (r *Router) Register(p Provider) error {
	if p.Name == "" || p.Model == nil {
		return fmt.Errorf("provider must carry a name and a model")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name] = &entry{provider: p, stats: &Stats{}}
	return nil
}

// Providers returns the names of all registered providers.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Stats returns the statistics snapshot of the named provider.
func (r *Router) Stats(name string) (StatsSnapshot, bool) {
	r.mu.RLock()
	e, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return StatsSnapshot{}, false
	}
	return e.stats.Snapshot(), true
}

// AllStats returns statistics snapshots for every registered provider.
func (r *Router) AllStats() map[string]StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]StatsSnapshot, len(r.providers))
	for name, e := range r.providers {
		out[name] = e.stats.Snapshot()
	}
	return out
}

// Embedder returns the first registered provider that implements
// model.Embedder, if any.
func (r *Router) Embedder() (model.Embedder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.providers {
		if emb, ok := e.provider.Model.(model.Embedder); ok {
			return emb, true
		}
	}
	return nil, false
}

// select1 picks the primary provider for the request:
//  1. an explicit registered preferred-provider hint wins;
//  2. else complexity is assessed (unless supplied) and Complex picks the
//     high-quality provider when registered;
//  3. else the cost-efficient default, else any registered provider.
func (r *Router) select1(request *model.Request) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.providers) == 0 {
		return nil, ErrNoProvidersAvailable
	}
	if request.Provider != "" {
		if e, ok := r.providers[request.Provider]; ok {
			return e, nil
		}
	}
	complexity := request.Complexity
	if complexity == "" {
		complexity = AssessComplexity(request.Messages)
	}
	if complexity == model.ComplexityComplex {
		if e := r.byTierLocked(TierHighQuality); e != nil {
			return e, nil
		}
	}
	if e := r.byTierLocked(TierCostEfficient); e != nil {
		return e, nil
	}
	for _, e := range r.providers {
		return e, nil
	}
	return nil, ErrNoProvidersAvailable
}

func (r *Router) byTierLocked(tier Tier) *entry {
	for _, e := range r.providers {
		if e.provider.Tier == tier {
			return e
		}
	}
	return nil
}

func (r *Router) fallbackFor(primary string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alternate, ok := r.fallbacks[primary]
	if !ok || alternate == primary {
		return nil, false
	}
	e, ok := r.providers[alternate]
	return e, ok
}

// Complete selects a provider, issues a blocking completion and returns the
// response with provenance. On any provider error the static fallback is
// tried exactly once; no retry beyond one hop.
func (r *Router) Complete(ctx context.Context, request *model.Request) (*Response, error) {
	primary, err := r.select1(request)
	if err != nil {
		return nil, err
	}
	response, primaryErr := r.attempt(ctx, primary, request)
	if primaryErr == nil {
		return response, nil
	}
	alternate, ok := r.fallbackFor(primary.provider.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrAllProvidersFailed, primary.provider.Name, primaryErr)
	}
	log.Warnf("provider %s failed, retrying with fallback %s: %v",
		primary.provider.Name, alternate.provider.Name, primaryErr)
	response, fallbackErr := r.attempt(ctx, alternate, request)
	if fallbackErr == nil {
		return response, nil
	}
	return nil, fmt.Errorf("%w: %s: %w; %s: %w", ErrAllProvidersFailed,
		primary.provider.Name, primaryErr, alternate.provider.Name, fallbackErr)
}

// attempt issues one completion against one provider and records its stats.
func (r *Router) attempt(ctx context.Context, e *entry, request *model.Request) (*Response, error) {
	req := r.applyDefaults(e, request)
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	rsp, err := e.provider.Model.Complete(callCtx, req)
	if err == nil && rsp.Error != nil {
		err = rsp.Error
	}
	latency := time.Since(start)
	if err != nil {
		e.stats.recordFailure()
		recordAttempt(ctx, e.provider.Name, latency, false)
		return nil, err
	}
	e.stats.recordSuccess(latency)
	recordAttempt(ctx, e.provider.Name, latency, true)

	out := &Response{
		Response:  rsp,
		Provider:  e.provider.Name,
		ModelUsed: rsp.Model,
		Latency:   latency,
	}
	if out.ModelUsed == "" {
		out.ModelUsed = req.Model
	}
	if rsp.Usage != nil {
		out.CostEstimate = float64(rsp.Usage.TotalTokens) * e.provider.CostPerToken
	}
	return out, nil
}

// CompleteStream selects a provider and opens a streaming completion. Dial
// errors trigger the same one-hop fallback as Complete; stream errors after
// a successful dial surface in-band as an error chunk.
func (r *Router) CompleteStream(ctx context.Context, request *model.Request) (*Stream, error) {
	primary, err := r.select1(request)
	if err != nil {
		return nil, err
	}
	stream, primaryErr := r.openStream(ctx, primary, request)
	if primaryErr == nil {
		return stream, nil
	}
	alternate, ok := r.fallbackFor(primary.provider.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrAllProvidersFailed, primary.provider.Name, primaryErr)
	}
	stream, fallbackErr := r.openStream(ctx, alternate, request)
	if fallbackErr == nil {
		return stream, nil
	}
	return nil, fmt.Errorf("%w: %s: %w; %s: %w", ErrAllProvidersFailed,
		primary.provider.Name, primaryErr, alternate.provider.Name, fallbackErr)
}

func (r *Router) openStream(ctx context.Context, e *entry, request *model.Request) (*Stream, error) {
	req := r.applyDefaults(e, request)
	req.Stream = true
	start := time.Now()
	chunks, err := e.provider.Model.Stream(ctx, req)
	latency := time.Since(start)
	if err != nil {
		e.stats.recordFailure()
		recordAttempt(ctx, e.provider.Name, latency, false)
		return nil, err
	}
	e.stats.recordSuccess(latency)
	recordAttempt(ctx, e.provider.Name, latency, true)
	return &Stream{
		Chunks:    chunks,
		Provider:  e.provider.Name,
		ModelUsed: req.Model,
	}, nil
}

// applyDefaults returns a shallow copy of the request with the provider's
// defaults filled in.
func (r *Router) applyDefaults(e *entry, request *model.Request) *model.Request {
	req := *request
	if req.Model == "" {
		req.Model = e.provider.DefaultModel
	}
	if req.MaxTokens == nil && e.provider.MaxTokens > 0 {
		maxTokens := e.provider.MaxTokens
		req.MaxTokens = &maxTokens
	}
	if req.Temperature == nil && e.provider.Temperature > 0 {
		temperature := e.provider.Temperature
		req.Temperature = &temperature
	}
	return &req
}

var (
	metricsOnce    sync.Once
	attemptCounter metric.Int64Counter
	latencyHist    metric.Float64Histogram
)

func recordAttempt(ctx context.Context, provider string, latency time.Duration, ok bool) {
	metricsOnce.Do(func() {
		var err error
		attemptCounter, err = telemetry.Meter.Int64Counter("crewcall.llm.attempts")
		if err != nil {
			log.Warnf("create llm attempt counter: %v", err)
		}
		latencyHist, err = telemetry.Meter.Float64Histogram("crewcall.llm.latency_ms")
		if err != nil {
			log.Warnf("create llm latency histogram: %v", err)
		}
	})
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		telemetry.KeyProvider.String(provider),
		telemetry.KeyOutcome.String(outcome),
	)
	if attemptCounter != nil {
		attemptCounter.Add(ctx, 1, attrs)
	}
	if latencyHist != nil {
		latencyHist.Record(ctx, float64(latency.Milliseconds()), attrs)
	}
}

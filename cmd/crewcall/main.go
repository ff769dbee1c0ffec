//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Command crewcall runs the orchestration engine behind the HTTP and
// WebSocket API. Providers are wired from the environment; with no API
// keys present the engine runs fully offline on the mock provider and a
// seeded demo knowledge graph.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crewcall-ai/crewcall/agent"
	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/knowledge"
	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/memory"
	memstore "github.com/crewcall-ai/crewcall/memory/inmemory"
	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/model/gemini"
	"github.com/crewcall-ai/crewcall/model/mock"
	"github.com/crewcall-ai/crewcall/model/openai"
	"github.com/crewcall-ai/crewcall/prompt"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/server"
	sessmem "github.com/crewcall-ai/crewcall/session/inmemory"
	"github.com/crewcall-ai/crewcall/supervisor"
	"github.com/crewcall-ai/crewcall/telemetry"
	"github.com/crewcall-ai/crewcall/tool"
)

var (
	addr         = flag.String("addr", envOr("CREWCALL_ADDR", ":8080"), "listen address")
	premiumModel = flag.String("premium-model", envOr("CREWCALL_PREMIUM_MODEL", "gpt-4o"),
		"OpenAI model for the high-quality tier")
	budgetModel = flag.String("budget-model", envOr("CREWCALL_BUDGET_MODEL", "gpt-4o-mini"),
		"OpenAI model for the cost-efficient tier")
	geminiModel = flag.String("gemini-model", envOr("CREWCALL_GEMINI_MODEL", "gemini-2.0-flash"),
		"Gemini model name")
	origins    = flag.String("origins", envOr("CREWCALL_ORIGINS", ""), "comma-separated allowed origins")
	sessionTTL = flag.Duration("session-ttl", 30*time.Minute, "conversation idle expiry")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, "crewcall")
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(flushCtx); err != nil {
			log.Warnf("telemetry shutdown: %v", err)
		}
	}()

	llmRouter, extractorModel, mockMode := buildRouter(ctx)

	graph := knowledge.NewStaticGraph()
	if mockMode {
		seedDemoGraph(graph)
	}
	registry := tool.NewRegistry()
	toolset := knowledge.NewToolset(graph, knowledge.WithCache(knowledge.NewMemoryCache()))
	if err := toolset.Register(registry); err != nil {
		log.Fatalf("register tools: %v", err)
	}

	embedder, ok := llmRouter.Embedder()
	if !ok {
		embedder = mock.New("embedder")
	}
	var managerOpts []memory.ManagerOption
	if extractorModel != nil {
		managerOpts = append(managerOpts, memory.WithExtractor(memory.NewLLMExtractor(extractorModel)))
	}
	memories := memory.NewManager(memstore.NewStore(), embedder, managerOpts...)
	queue, err := memory.NewQueue()
	if err != nil {
		log.Fatalf("start memory queue: %v", err)
	}
	defer queue.Close()

	sessions := sessmem.NewService(sessmem.WithTTL(*sessionTTL))
	defer sessions.Close()

	prompts := prompt.NewRegistry()
	agentOpts := []agent.Option{
		agent.WithSessionService(sessions),
		agent.WithMemoryManager(memories),
		agent.WithMemoryQueue(queue),
	}
	sales, err := agent.NewSales(llmRouter, prompts, registry, agentOpts...)
	if err != nil {
		log.Fatalf("build sales agent: %v", err)
	}
	talent, err := agent.NewTalent(llmRouter, prompts, registry, agentOpts...)
	if err != nil {
		log.Fatalf("build talent agent: %v", err)
	}
	analytics, err := agent.NewAnalytics(llmRouter, prompts, registry, agentOpts...)
	if err != nil {
		log.Fatalf("build analytics agent: %v", err)
	}

	sup := supervisor.New(llmRouter, []agent.Agent{sales, talent, analytics},
		supervisor.WithSessionService(sessions))

	srv := server.New(sup, buildAuthenticator(),
		server.WithAddr(*addr),
		server.WithLLMRouter(llmRouter),
		server.WithToolRegistry(registry),
		server.WithMemoryQueue(queue),
		server.WithSessionService(sessions),
		server.WithAllowedOrigins(splitNonEmpty(*origins)),
		server.WithMockMode(mockMode),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}
}

// buildRouter registers every provider the environment has keys for and
// returns the model used for background fact extraction. With no keys at
// all the mock provider keeps the engine usable offline.
func buildRouter(ctx context.Context) (*router.Router, model.Model, bool) {
	llmRouter := router.New(router.WithFallback(*premiumModel, *budgetModel))
	var extractor model.Model
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		budget := openai.New(*budgetModel, openai.WithAPIKey(key))
		register(llmRouter, router.Provider{
			Name:         *premiumModel,
			Model:        openai.New(*premiumModel, openai.WithAPIKey(key)),
			Tier:         router.TierHighQuality,
			CostPerToken: 0.00001,
		})
		register(llmRouter, router.Provider{
			Name:         *budgetModel,
			Model:        budget,
			Tier:         router.TierCostEfficient,
			CostPerToken: 0.0000006,
		})
		extractor = budget
	}
	if os.Getenv("GOOGLE_API_KEY") != "" {
		g, err := gemini.New(ctx, *geminiModel)
		if err != nil {
			log.Errorf("gemini provider unavailable: %v", err)
		} else {
			register(llmRouter, router.Provider{
				Name:         *geminiModel,
				Model:        g,
				Tier:         router.TierCostEfficient,
				CostPerToken: 0.0000004,
			})
			if extractor == nil {
				extractor = g
			}
		}
	}
	if len(llmRouter.Providers()) > 0 {
		return llmRouter, extractor, false
	}
	log.Warnf("no provider API keys found, falling back to the offline mock provider")
	register(llmRouter, router.Provider{
		Name:  "mock",
		Model: mock.New("mock-model"),
		Tier:  router.TierCostEfficient,
	})
	return llmRouter, nil, true
}

func register(llmRouter *router.Router, p router.Provider) {
	if err := llmRouter.Register(p); err != nil {
		log.Fatalf("register provider %s: %v", p.Name, err)
	}
}

// buildAuthenticator parses CREWCALL_AUTH_TOKENS, a comma-separated list
// of token:user_id:role entries. Without it, demo tokens are issued and
// logged so local setups work out of the box.
func buildAuthenticator() server.Authenticator {
	auth := server.StaticAuthenticator{}
	raw := os.Getenv("CREWCALL_AUTH_TOKENS")
	if raw == "" {
		auth["demo-director"] = identity.Caller{
			UserID:         "demo-director",
			Role:           identity.RoleDirector,
			MaxSensitivity: identity.SensitivityRestricted,
		}
		auth["demo-sales"] = identity.Caller{
			UserID:         "demo-sales",
			Role:           identity.RoleSalesperson,
			MaxSensitivity: identity.SensitivityInternal,
		}
		log.Warnf("CREWCALL_AUTH_TOKENS not set, using demo tokens demo-director and demo-sales")
		return auth
	}
	for _, entry := range splitNonEmpty(raw) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			log.Fatalf("malformed auth token entry %q, want token:user_id:role", entry)
		}
		role := identity.Role(parts[2])
		if !role.IsValid() {
			log.Fatalf("unknown role %q in auth token entry", parts[2])
		}
		auth[parts[0]] = identity.Caller{
			UserID:         parts[1],
			Role:           role,
			MaxSensitivity: defaultCeiling(role),
		}
	}
	return auth
}

// defaultCeiling maps a role to its data-sensitivity ceiling.
func defaultCeiling(role identity.Role) identity.Sensitivity {
	switch role {
	case identity.RoleLeadership:
		return identity.SensitivitySecret
	case identity.RoleDirector:
		return identity.SensitivityRestricted
	case identity.RoleCreativeDirector:
		return identity.SensitivityConfidential
	default:
		return identity.SensitivityInternal
	}
}

// seedDemoGraph loads a small fixture dataset so the offline mode has
// something to answer with.
func seedDemoGraph(graph *knowledge.StaticGraph) {
	graph.HandleRecords("get_person_details", knowledge.Record{
		"name": "Maria Lopez", "title": "Director of Photography",
		"specialties": []string{"commercial", "documentary"},
	})
	graph.HandleRecords("get_organization_profile", knowledge.Record{
		"name": "Northwind Beverages", "industry": "beverages",
		"relationship": "active client",
	})
	graph.HandleRecords("get_project_details", knowledge.Record{
		"title": "Summer Launch Spot", "status": "in production",
		"client": "Northwind Beverages",
	})
	graph.HandleRecords("find_projects_by_concept", knowledge.Record{
		"title": "Summer Launch Spot", "concept": "nostalgia",
	})
	graph.HandleRecords("find_documents_for_project", knowledge.Record{
		"title": "Summer Launch Treatment", "doc_type": "treatment",
		"content": "A sun-washed treatment built around nostalgia and summer rituals.",
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

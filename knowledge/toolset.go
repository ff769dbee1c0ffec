//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/tool"
)

// Category TTLs applied to cached tool results.
const (
	ttlPersons       = 300 * time.Second
	ttlProjects      = 300 * time.Second
	ttlConcepts      = 600 * time.Second
	ttlOrganizations = 600 * time.Second
	ttlDocuments     = 1800 * time.Second
)

const defaultCallTimeout = 10 * time.Second

// Toolset builds the graph-backed tools and registers them with a registry.
type Toolset struct {
	graph       Graph
	cache       Cache
	crm         CRM
	callTimeout time.Duration
}

// ToolsetOption configures a Toolset.
type ToolsetOption func(*Toolset)

// WithCache sets the read-through result cache.
func WithCache(cache Cache) ToolsetOption {
	return func(t *Toolset) {
		t.cache = cache
	}
}

// WithCRM sets the optional live CRM client used by deal-status lookups.
func WithCRM(crm CRM) ToolsetOption {
	return func(t *Toolset) {
		t.crm = crm
	}
}

// WithCallTimeout sets the per-tool-call timeout, 10s by default.
func WithCallTimeout(timeout time.Duration) ToolsetOption {
	return func(t *Toolset) {
		if timeout > 0 {
			t.callTimeout = timeout
		}
	}
}

// NewToolset creates a toolset over the given graph connector.
func NewToolset(graph Graph, opts ...ToolsetOption) *Toolset {
	t := &Toolset{
		graph:       graph,
		cache:       NewMemoryCache(),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register registers every canonical tool with the registry.
func (t *Toolset) Register(registry *tool.Registry) error {
	for _, def := range t.definitions() {
		if err := registry.Register(&graphTool{set: t, def: def}); err != nil {
			return fmt.Errorf("register tool %s: %w", def.decl.Name, err)
		}
	}
	return nil
}

// runner produces the inner payload of a tool result. A nil record with a
// nil error means the entity was not found.
type runner func(ctx context.Context, set *Toolset, args map[string]any) (Record, error)

type toolDef struct {
	decl *tool.Declaration
	run  runner
}

// graphTool adapts one tool definition to the tool.CallableTool contract:
// read-through caching, per-call timeout and the uniform found/error
// envelope. Domain misses and infrastructure failures both surface as a
// structured record, never as a call error.
type graphTool struct {
	set *Toolset
	def toolDef
}

// Declaration implements the tool.Tool interface.
func (g *graphTool) Declaration() *tool.Declaration {
	return g.def.decl
}

// Call implements the tool.CallableTool interface.
func (g *graphTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	args := make(map[string]any)
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &args); err != nil {
			return nil, fmt.Errorf("tool %s: unmarshal arguments: %w", g.def.decl.Name, err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, g.set.callTimeout)
	defer cancel()

	name := g.def.decl.Name
	ttl := g.def.decl.CacheTTL
	key := CacheKey(name, args)
	if ttl > 0 && g.set.cache != nil {
		cached, hit, err := g.set.cache.Get(callCtx, key)
		if err != nil {
			log.Warnf("tool %s: cache read failed, falling through: %v", name, err)
		} else if hit {
			return cached, nil
		}
	}

	result, err := g.def.run(callCtx, g.set, args)
	if err != nil {
		log.Warnf("tool %s: query failed: %v", name, err)
		return Record{"found": false, "error": err.Error()}, nil
	}
	if result == nil {
		result = Record{
			"found":   false,
			"message": fmt.Sprintf("No results found for %s.", name),
		}
	} else if _, ok := result["found"]; !ok {
		result["found"] = true
	}
	if ttl > 0 && g.set.cache != nil {
		go func() {
			storeCtx, cancel := context.WithTimeout(context.Background(), g.set.callTimeout)
			defer cancel()
			if err := g.set.cache.Set(storeCtx, key, result, ttl); err != nil {
				log.Warnf("tool %s: cache write failed: %v", name, err)
			}
		}()
	}
	return result, nil
}

// singular returns a runner that expects at most one graph record and
// merges it into the result envelope.
func singular(entity string) runner {
	return func(ctx context.Context, set *Toolset, args map[string]any) (Record, error) {
		records, err := set.graph.Query(ctx, entity, args)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		result := Record{"found": true}
		for k, v := range records[0] {
			result[k] = v
		}
		return result, nil
	}
}

// plural returns a runner that wraps all matching records as a result list.
func plural(entity string) runner {
	return func(ctx context.Context, set *Toolset, args map[string]any) (Record, error) {
		records, err := set.graph.Query(ctx, entity, args)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return Record{"found": true, "count": len(records), "results": records}, nil
	}
}

// documentSearch wraps a plural query and attaches a content snippet to
// every hit, keyed on the caller's query terms.
func documentSearch(entity string) runner {
	inner := plural(entity)
	return func(ctx context.Context, set *Toolset, args map[string]any) (Record, error) {
		result, err := inner(ctx, set, args)
		if err != nil || result == nil {
			return result, err
		}
		query, _ := args["query"].(string)
		terms := splitTerms(query)
		hits, _ := result["results"].([]Record)
		// The connector owns the returned records; snippets are attached
		// to copies so its data is never mutated.
		out := make([]Record, 0, len(hits))
		for _, hit := range hits {
			copied := maps.Clone(hit)
			if content, _ := copied["content"].(string); content != "" {
				copied["snippet"] = ExtractSnippet(content, terms)
				delete(copied, "content")
			}
			out = append(out, copied)
		}
		result["results"] = out
		return result, nil
	}
}

func splitTerms(query string) []string {
	var terms []string
	field := make([]byte, 0, len(query))
	flush := func() {
		if len(field) > 0 {
			terms = append(terms, string(field))
			field = field[:0]
		}
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == ' ' || c == '\t' || c == '\n' {
			flush()
			continue
		}
		field = append(field, c)
	}
	flush()
	return terms
}

// dealLiveStatus looks up the deal in the graph and best-effort enriches it
// with the live CRM status. Enrichment failures downgrade the result to
// graph-only with a data_freshness indicator.
func dealLiveStatus(ctx context.Context, set *Toolset, args map[string]any) (Record, error) {
	records, err := set.graph.Query(ctx, "get_deal_live_status", args)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	result := Record{"found": true, "data_freshness": FreshnessGraphOnly}
	for k, v := range records[0] {
		result[k] = v
	}
	if set.crm == nil {
		return result, nil
	}
	dealID, _ := result["deal_id"].(string)
	if dealID == "" {
		return result, nil
	}
	live, err := set.crm.DealStatus(ctx, dealID)
	if err != nil {
		log.Warnf("deal %s: live CRM enrichment failed, serving graph result: %v", dealID, err)
		return result, nil
	}
	for k, v := range live {
		result[k] = v
	}
	result["data_freshness"] = FreshnessLive
	return result, nil
}

func stringArgs(required []string, props map[string]string) *tool.Schema {
	schema := &tool.Schema{
		Type:       "object",
		Properties: make(map[string]*tool.Schema, len(props)),
		Required:   required,
	}
	for name, description := range props {
		schema.Properties[name] = &tool.Schema{Type: "string", Description: description}
	}
	return schema
}

func (t *Toolset) definitions() []toolDef {
	return []toolDef{
		// CRM / people.
		{
			decl: &tool.Declaration{
				Name:        "get_person_details",
				Description: "Get profile details for a person by name: role, organization, skills and recent activity.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlPersons,
				InputSchema: stringArgs([]string{"person_name"}, map[string]string{
					"person_name": "Full name of the person to look up.",
				}),
			},
			run: singular("get_person_details"),
		},
		{
			decl: &tool.Declaration{
				Name:        "find_people_at_organization",
				Description: "Find people associated with an organization by organization name.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlOrganizations,
				InputSchema: stringArgs([]string{"org_name"}, map[string]string{
					"org_name": "Name of the organization.",
				}),
			},
			run: plural("find_people_at_organization"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_deal_sourcer",
				Description: "Identify who sourced a deal, by deal name.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlPersons,
				InputSchema: stringArgs([]string{"deal_name"}, map[string]string{
					"deal_name": "Name of the deal.",
				}),
			},
			run: singular("get_deal_sourcer"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_deal_live_status",
				Description: "Get the current status of a deal, enriched with live CRM data when available.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityConfidential,
				// Live lookups are never cached.
				InputSchema: stringArgs([]string{"deal_name"}, map[string]string{
					"deal_name": "Name of the deal.",
				}),
			},
			run: dealLiveStatus,
		},
		{
			decl: &tool.Declaration{
				Name:        "find_collaborators",
				Description: "Find people who have collaborated with a person on past work.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlPersons,
				InputSchema: stringArgs([]string{"person_name"}, map[string]string{
					"person_name": "Full name of the person.",
				}),
			},
			run: plural("find_collaborators"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_organization_profile",
				Description: "Get the profile of an organization: industry, relationship history and key contacts.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlOrganizations,
				InputSchema: stringArgs([]string{"org_name"}, map[string]string{
					"org_name": "Name of the organization.",
				}),
			},
			run: singular("get_organization_profile"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_network_connections",
				Description: "Get the network connections of a person across organizations and projects.",
				Category:    tool.CategoryPeople,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlPersons,
				InputSchema: stringArgs([]string{"person_name"}, map[string]string{
					"person_name": "Full name of the person.",
				}),
			},
			run: plural("get_network_connections"),
		},

		// Projects / creative.
		{
			decl: &tool.Declaration{
				Name:        "get_project_details",
				Description: "Get details for a project by name: client, status, timeline and budget band.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the project.",
				}),
			},
			run: singular("get_project_details"),
		},
		{
			decl: &tool.Declaration{
				Name:        "find_projects_by_concept",
				Description: "Find projects matching a creative concept or theme.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlConcepts,
				InputSchema: stringArgs([]string{"concept"}, map[string]string{
					"concept": "Creative concept or theme to search for.",
				}),
			},
			run: plural("find_projects_by_concept"),
		},
		{
			decl: &tool.Declaration{
				Name:        "find_contributors_on_client_projects",
				Description: "Find people who contributed to projects for a given client.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs([]string{"client_name"}, map[string]string{
					"client_name": "Name of the client organization.",
				}),
			},
			run: plural("find_contributors_on_client_projects"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_project_vendors",
				Description: "List vendors engaged on a project.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the project.",
				}),
			},
			run: plural("get_project_vendors"),
		},
		{
			decl: &tool.Declaration{
				Name:        "find_similar_projects",
				Description: "Find projects similar to a given project by concept, client or crew overlap.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the reference project.",
				}),
			},
			run: plural("find_similar_projects"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_project_team_details",
				Description: "Get the team composition of a project with each member's role.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the project.",
				}),
			},
			run: singular("get_project_team_details"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_creative_concepts_for_project",
				Description: "List the creative concepts attached to a project.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlConcepts,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the project.",
				}),
			},
			run: plural("get_creative_concepts_for_project"),
		},
		{
			decl: &tool.Declaration{
				Name:        "find_creative_references",
				Description: "Find creative references and prior art for a concept.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlConcepts,
				InputSchema: stringArgs([]string{"concept"}, map[string]string{
					"concept": "Creative concept to find references for.",
				}),
			},
			run: plural("find_creative_references"),
		},
		{
			decl: &tool.Declaration{
				Name:        "search_projects_by_criteria",
				Description: "Search projects by any combination of client, year and project type.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityInternal,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs(nil, map[string]string{
					"client_name":  "Client organization to filter by.",
					"year":         "Production year to filter by.",
					"project_type": "Project type to filter by, e.g. commercial or music video.",
				}),
			},
			run: plural("search_projects_by_criteria"),
		},
		{
			decl: &tool.Declaration{
				Name:        "extract_project_insights",
				Description: "Extract aggregate insights for a project: outcomes, performance notes and learnings.",
				Category:    tool.CategoryProjects,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlProjects,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the project.",
				}),
			},
			run: singular("extract_project_insights"),
		},

		// Documents / content.
		{
			decl: &tool.Declaration{
				Name:        "find_documents_for_project",
				Description: "List documents associated with a project.",
				Category:    tool.CategoryDocuments,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlDocuments,
				InputSchema: stringArgs([]string{"project_name"}, map[string]string{
					"project_name": "Name of the project.",
				}),
			},
			run: plural("find_documents_for_project"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_document_profile_details",
				Description: "Get the profile of a document by name: type, owner and summary.",
				Category:    tool.CategoryDocuments,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlDocuments,
				InputSchema: stringArgs([]string{"document_name"}, map[string]string{
					"document_name": "Name of the document.",
				}),
			},
			run: singular("get_document_profile_details"),
		},
		{
			decl: &tool.Declaration{
				Name:        "search_documents_full_text",
				Description: "Full-text search across all documents; returns hits with short content snippets.",
				Category:    tool.CategoryDocuments,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlDocuments,
				InputSchema: stringArgs([]string{"query"}, map[string]string{
					"query": "Search terms.",
				}),
			},
			run: documentSearch("search_documents_full_text"),
		},
		{
			decl: &tool.Declaration{
				Name:        "search_documents_by_content",
				Description: "Search documents by content similarity; returns hits with short content snippets.",
				Category:    tool.CategoryDocuments,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlDocuments,
				InputSchema: stringArgs([]string{"query"}, map[string]string{
					"query": "Content description to match.",
				}),
			},
			run: documentSearch("search_documents_by_content"),
		},
		{
			decl: &tool.Declaration{
				Name:        "get_document_by_id",
				Description: "Fetch a document by its stable identifier.",
				Category:    tool.CategoryDocuments,
				Sensitivity: identity.SensitivityConfidential,
				CacheTTL:    ttlDocuments,
				InputSchema: stringArgs([]string{"document_id"}, map[string]string{
					"document_id": "Stable identifier of the document.",
				}),
			},
			run: singular("get_document_by_id"),
		},
	}
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/tool"
)

type failingGraph struct{}

func (failingGraph) Query(ctx context.Context, name string, args map[string]any) ([]Record, error) {
	return nil, errors.New("graph unreachable")
}

type staticCRM struct {
	status Record
	err    error
	calls  int
}

func (c *staticCRM) DealStatus(ctx context.Context, dealID string) (Record, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.status, nil
}

func newTestRegistry(t *testing.T, set *Toolset) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry()
	require.NoError(t, set.Register(registry))
	return registry
}

func callTool(t *testing.T, registry *tool.Registry, name, jsonArgs string) Record {
	t.Helper()
	tl, ok := registry.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	out, err := tl.Call(context.Background(), []byte(jsonArgs))
	require.NoError(t, err)
	result, ok := out.(Record)
	require.True(t, ok)
	return result
}

func TestToolsetRegistersCanonicalTools(t *testing.T) {
	registry := newTestRegistry(t, NewToolset(NewStaticGraph()))
	assert.Equal(t, 22, registry.Len())
	assert.Len(t, registry.ByCategories(tool.CategoryPeople), 7)
	assert.Len(t, registry.ByCategories(tool.CategoryProjects), 10)
	assert.Len(t, registry.ByCategories(tool.CategoryDocuments), 5)
}

func TestSingularToolFoundAndMiss(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("get_organization_profile", Record{
		"name":     "CocaCola",
		"industry": "beverages",
	})
	registry := newTestRegistry(t, NewToolset(graph))

	result := callTool(t, registry, "get_organization_profile", `{"org_name":"CocaCola"}`)
	assert.Equal(t, true, result["found"])
	assert.Equal(t, "beverages", result["industry"])

	miss := callTool(t, registry, "get_person_details", `{"person_name":"Nobody"}`)
	assert.Equal(t, false, miss["found"])
	assert.NotEmpty(t, miss["message"])
}

func TestPluralToolWrapsResults(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("find_projects_by_concept",
		Record{"name": "Air Max Spot"},
		Record{"name": "Air Max Social Cut"},
	)
	registry := newTestRegistry(t, NewToolset(graph))

	result := callTool(t, registry, "find_projects_by_concept", `{"concept":"Nike Air Max"}`)
	assert.Equal(t, true, result["found"])
	assert.Equal(t, 2, result["count"])
	assert.Len(t, result["results"], 2)
}

func TestToolCacheRoundTrip(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("find_projects_by_concept", Record{"name": "Air Max Spot"})
	cache := NewMemoryCache()
	registry := newTestRegistry(t, NewToolset(graph, WithCache(cache)))

	first := callTool(t, registry, "find_projects_by_concept", `{"concept":"Nike Air Max"}`)
	assert.EqualValues(t, 1, graph.Queries())

	// The write-back is asynchronous.
	require.Eventually(t, func() bool { return cache.Len() == 1 },
		time.Second, 5*time.Millisecond)

	second := callTool(t, registry, "find_projects_by_concept", `{"concept":"nike  air max"}`)
	assert.EqualValues(t, 1, graph.Queries(), "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestToolGraphErrorReturnsEnvelope(t *testing.T) {
	registry := newTestRegistry(t, NewToolset(failingGraph{}))
	result := callTool(t, registry, "get_project_details", `{"project_name":"Air Max Spot"}`)
	assert.Equal(t, false, result["found"])
	assert.Contains(t, result["error"], "graph unreachable")
}

func TestToolBadArgumentsIsCallError(t *testing.T) {
	registry := newTestRegistry(t, NewToolset(NewStaticGraph()))
	tl, ok := registry.Get("get_project_details")
	require.True(t, ok)
	_, err := tl.Call(context.Background(), []byte(`{broken`))
	assert.Error(t, err)
}

func TestDealLiveStatusEnriched(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("get_deal_live_status", Record{
		"deal_id": "deal-42",
		"stage":   "negotiation",
	})
	crm := &staticCRM{status: Record{"stage": "closed_won", "amount": 250000.0}}
	registry := newTestRegistry(t, NewToolset(graph, WithCRM(crm)))

	result := callTool(t, registry, "get_deal_live_status", `{"deal_name":"Nike Q3"}`)
	assert.Equal(t, FreshnessLive, result["data_freshness"])
	assert.Equal(t, "closed_won", result["stage"])
	assert.Equal(t, 1, crm.calls)
}

func TestDealLiveStatusCRMFailureDowngrades(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("get_deal_live_status", Record{
		"deal_id": "deal-42",
		"stage":   "negotiation",
	})
	crm := &staticCRM{err: errors.New("crm timeout")}
	registry := newTestRegistry(t, NewToolset(graph, WithCRM(crm)))

	result := callTool(t, registry, "get_deal_live_status", `{"deal_name":"Nike Q3"}`)
	assert.Equal(t, true, result["found"])
	assert.Equal(t, FreshnessGraphOnly, result["data_freshness"])
	assert.Equal(t, "negotiation", result["stage"])
}

func TestDealLiveStatusNeverCached(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("get_deal_live_status", Record{"deal_id": "deal-42"})
	registry := newTestRegistry(t, NewToolset(graph))

	callTool(t, registry, "get_deal_live_status", `{"deal_name":"Nike Q3"}`)
	callTool(t, registry, "get_deal_live_status", `{"deal_name":"Nike Q3"}`)
	assert.EqualValues(t, 2, graph.Queries())
}

func TestDocumentSearchAttachesSnippets(t *testing.T) {
	graph := NewStaticGraph()
	graph.HandleRecords("search_documents_full_text", Record{
		"document_id": "doc-1",
		"content":     strings.Repeat("padding ", 50) + "the Nike Air Max treatment " + strings.Repeat("padding ", 50),
	})
	registry := newTestRegistry(t, NewToolset(graph))

	result := callTool(t, registry, "search_documents_full_text", `{"query":"Nike treatment"}`)
	hits, ok := result["results"].([]Record)
	require.True(t, ok)
	require.Len(t, hits, 1)
	snippet, _ := hits[0]["snippet"].(string)
	assert.Contains(t, snippet, "Nike Air Max")
	assert.NotContains(t, hits[0], "content")
}

func TestDocumentSearchLeavesGraphRecordsIntact(t *testing.T) {
	shared := Record{
		"document_id": "doc-1",
		"content": "Part one is all about budgets and spend. " +
			strings.Repeat("padding ", 40) +
			"Part two, much later, covers nostalgia and memory.",
	}
	graph := NewStaticGraph()
	graph.HandleRecords("search_documents_full_text", shared)
	registry := newTestRegistry(t, NewToolset(graph))

	first := callTool(t, registry, "search_documents_full_text", `{"query":"budgets"}`)
	hits, ok := first["results"].([]Record)
	require.True(t, ok)
	require.Len(t, hits, 1)
	firstSnippet, _ := hits[0]["snippet"].(string)
	assert.Contains(t, firstSnippet, "budgets")

	// The connector still owns an unmodified record, so a later search
	// for different terms gets its own snippet.
	assert.Contains(t, shared, "content")
	second := callTool(t, registry, "search_documents_full_text", `{"query":"nostalgia"}`)
	hits, ok = second["results"].([]Record)
	require.True(t, ok)
	require.Len(t, hits, 1)
	secondSnippet, _ := hits[0]["snippet"].(string)
	assert.Contains(t, secondSnippet, "nostalgia")
	assert.NotContains(t, hits[0], "content")
}

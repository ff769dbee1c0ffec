//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/model"
)

const (
	consolidationThreshold = 0.85
	// proceduralRepeatCount is how many same-kind requests in the recent
	// window it takes before a behavioral pattern is recorded.
	proceduralRepeatCount = 3
	recentTaskWindow      = 10
)

// Turn describes one completed conversation turn handed to the write path.
type Turn struct {
	// UserID is the owning user.
	UserID string
	// ConversationID is the source conversation.
	ConversationID string
	// AgentKind is the agent that handled the turn.
	AgentKind string
	// TaskType is the agent's task classification, may be empty.
	TaskType string
	// Messages is the turn's message log.
	Messages []model.Message
	// Sensitivity tags the stored memories.
	Sensitivity identity.Sensitivity
	// SkipExtraction stores only the episodic record, shedding fact
	// extraction under backpressure.
	SkipExtraction bool
}

// Context is the assembled memory context handed to agents, partitioned by
// variant.
type Context struct {
	// SemanticFacts are matching semantic memories.
	SemanticFacts []Result `json:"semantic_facts"`
	// PastInteractions are matching episodic memories.
	PastInteractions []Result `json:"past_interactions"`
	// BehavioralPatterns are matching procedural memories.
	BehavioralPatterns []Result `json:"behavioral_patterns"`
}

// Manager drives the memory write, read and consolidation paths.
type Manager struct {
	store     Store
	embedder  model.Embedder
	extractor Extractor

	mu          sync.Mutex
	recentTasks map[string][]string
	// userLocks holds the per-user advisory consolidation locks.
	userLocks map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExtractor replaces the default rule-based fact extractor.
func WithExtractor(extractor Extractor) ManagerOption {
	return func(m *Manager) {
		m.extractor = extractor
	}
}

// NewManager creates a memory manager over the given store and embedder.
func NewManager(store Store, embedder model.Embedder, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		embedder:    embedder,
		extractor:   NewRuleExtractor(),
		recentTasks: make(map[string][]string),
		userLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transcript formats messages as a plain transcript, one "role: content"
// line per message. Tool payloads are skipped.
func Transcript(messages []model.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Role == model.RoleTool || msg.Content == "" {
			continue
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// ProcessTurn runs the write path for one completed turn: extract semantic
// facts, store an episodic summary, and record a procedural pattern when
// the user repeats the same kind of request. Best-effort: individual store
// failures are logged, not returned.
func (m *Manager) ProcessTurn(ctx context.Context, turn Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	transcript := Transcript(turn.Messages)
	if transcript == "" {
		return nil
	}

	var facts []Fact
	var err error
	if !turn.SkipExtraction {
		if facts, err = m.extractor.Extract(ctx, transcript); err != nil {
			log.Warnf("memory extraction failed for user %s: %v", turn.UserID, err)
			facts = nil
		}
	}
	for _, fact := range facts {
		entry := &Entry{
			ID:          uuid.NewString(),
			UserID:      turn.UserID,
			Variant:     VariantSemantic,
			Content:     fact.Content,
			Importance:  AssignImportance(fact),
			Sensitivity: turn.Sensitivity,
			FactType:    fact.FactType,
			Confidence:  fact.Confidence,
			CreatedAt:   time.Now(),
		}
		if entry.Embedding, err = m.embed(ctx, fact.Content); err != nil {
			log.Warnf("embed semantic fact failed: %v", err)
			continue
		}
		if err := m.store.Put(ctx, entry); err != nil {
			log.Warnf("store semantic memory failed: %v", err)
		}
	}

	summary := summarize(turn.Messages)
	episodic := &Entry{
		ID:                   uuid.NewString(),
		UserID:               turn.UserID,
		Variant:              VariantEpisodic,
		Content:              summary,
		Importance:           ImportanceMedium,
		Sensitivity:          turn.Sensitivity,
		SourceConversationID: turn.ConversationID,
		AgentKinds:           []string{turn.AgentKind},
		Topics:               extractTopics(turn.Messages),
		CreatedAt:            time.Now(),
	}
	if episodic.Embedding, err = m.embed(ctx, summary); err != nil {
		log.Warnf("embed episodic memory failed: %v", err)
		return nil
	}
	if err := m.store.Put(ctx, episodic); err != nil {
		log.Warnf("store episodic memory failed: %v", err)
	}

	if pattern := m.observeTask(turn.UserID, turn.AgentKind, turn.TaskType); pattern != "" {
		m.storeProcedural(ctx, turn, pattern)
	}
	return nil
}

// observeTask records the turn's task kind in the user's recent window and
// returns the kind once it repeats often enough.
func (m *Manager) observeTask(userID, agentKind, taskType string) string {
	kind := agentKind
	if taskType != "" {
		kind = agentKind + "/" + taskType
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	window := append(m.recentTasks[userID], kind)
	if len(window) > recentTaskWindow {
		window = window[len(window)-recentTaskWindow:]
	}
	m.recentTasks[userID] = window
	count := 0
	for _, k := range window {
		if k == kind {
			count++
		}
	}
	if count == proceduralRepeatCount {
		return kind
	}
	return ""
}

func (m *Manager) storeProcedural(ctx context.Context, turn Turn, pattern string) {
	content := fmt.Sprintf("User repeatedly makes %s requests.", pattern)
	entry := &Entry{
		ID:          uuid.NewString(),
		UserID:      turn.UserID,
		Variant:     VariantProcedural,
		Content:     content,
		Importance:  ImportanceHigh,
		Sensitivity: turn.Sensitivity,
		Trigger:     pattern,
		Action:      "route to " + turn.AgentKind,
		SuccessRate: 1.0,
		UsageCount:  1,
		CreatedAt:   time.Now(),
	}
	var err error
	if entry.Embedding, err = m.embed(ctx, content); err != nil {
		log.Warnf("embed procedural memory failed: %v", err)
		return
	}
	if err := m.store.Put(ctx, entry); err != nil {
		log.Warnf("store procedural memory failed: %v", err)
	}
}

// Search runs the read path: embed the query, search by similarity and bump
// access counters on the returned entries.
func (m *Manager) Search(ctx context.Context, userID, queryText string,
	filters SearchFilters) ([]Result, error) {
	embedding, err := m.embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := m.store.SearchBySimilarity(ctx, userID, embedding, filters)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		ids := make([]string, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.Entry.ID)
		}
		if err := m.store.TouchAccess(ctx, userID, ids); err != nil {
			log.Warnf("touch memory access failed: %v", err)
		}
	}
	return results, nil
}

// BuildContext returns the top matching memories for the query partitioned
// by variant, for prompt enrichment.
func (m *Manager) BuildContext(ctx context.Context, userID, queryText string,
	maxSensitivity identity.Sensitivity) (*Context, error) {
	results, err := m.Search(ctx, userID, queryText, SearchFilters{
		MaxSensitivity: &maxSensitivity,
	})
	if err != nil {
		return nil, err
	}
	out := &Context{}
	for _, r := range results {
		switch r.Entry.Variant {
		case VariantSemantic:
			out.SemanticFacts = append(out.SemanticFacts, r)
		case VariantEpisodic:
			out.PastInteractions = append(out.PastInteractions, r)
		case VariantProcedural:
			out.BehavioralPatterns = append(out.BehavioralPatterns, r)
		}
	}
	return out, nil
}

// Consolidate groups the user's same-variant memories by pairwise cosine
// similarity at or above 0.85, keeps the best entry of each group and
// soft-deletes the rest. Idempotent: re-running at the fixed point removes
// nothing further.
func (m *Manager) Consolidate(ctx context.Context, userID string) (int, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	byVariant := make(map[Variant][]*Entry)
	for _, e := range entries {
		byVariant[e.Variant] = append(byVariant[e.Variant], e)
	}

	var consolidated []string
	for _, group := range byVariant {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		absorbed := make([]bool, len(group))
		for i := 0; i < len(group); i++ {
			if absorbed[i] {
				continue
			}
			cluster := []*Entry{group[i]}
			for j := i + 1; j < len(group); j++ {
				if absorbed[j] {
					continue
				}
				if Cosine(group[i].Embedding, group[j].Embedding) >= consolidationThreshold {
					cluster = append(cluster, group[j])
					absorbed[j] = true
				}
			}
			if len(cluster) < 2 {
				continue
			}
			keep := bestEntry(cluster)
			for _, e := range cluster {
				if e.ID != keep.ID {
					consolidated = append(consolidated, e.ID)
				}
			}
		}
	}
	if len(consolidated) == 0 {
		return 0, nil
	}
	if err := m.store.MarkConsolidated(ctx, userID, consolidated); err != nil {
		return 0, err
	}
	return len(consolidated), nil
}

// bestEntry picks the entry with the highest (importance, created-at,
// access-count) tuple.
func bestEntry(cluster []*Entry) *Entry {
	best := cluster[0]
	for _, e := range cluster[1:] {
		switch {
		case e.Importance != best.Importance:
			if e.Importance > best.Importance {
				best = e
			}
		case !e.CreatedAt.Equal(best.CreatedAt):
			if e.CreatedAt.After(best.CreatedAt) {
				best = e
			}
		case e.AccessCount > best.AccessCount:
			best = e
		}
	}
	return best
}

// UpdateProceduralOutcome folds one observed outcome into a procedural
// memory's running success rate.
func (m *Manager) UpdateProceduralOutcome(ctx context.Context, userID, id string, success bool) error {
	entries, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID != id || e.Variant != VariantProcedural {
			continue
		}
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		total := float64(e.UsageCount)
		e.SuccessRate = (e.SuccessRate*total + outcome) / (total + 1)
		e.UsageCount++
		return m.store.Put(ctx, e)
	}
	return ErrEntryNotFound
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLocks[userID] = lock
	}
	return lock
}

func (m *Manager) embed(ctx context.Context, text string) ([]float64, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return m.embedder.Embed(ctx, text)
}

// summarize builds a short length-based summary of the turn.
func summarize(messages []model.Message) string {
	var firstUser string
	for _, msg := range messages {
		if msg.Role == model.RoleUser {
			firstUser = msg.Content
			break
		}
	}
	if len(firstUser) > 120 {
		firstUser = firstUser[:120] + "..."
	}
	return fmt.Sprintf("Conversation with %d messages. User asked: %s", len(messages), firstUser)
}

var topicStopwords = map[string]bool{
	"about": true, "after": true, "before": true, "could": true,
	"please": true, "should": true, "their": true, "there": true,
	"these": true, "those": true, "where": true, "which": true, "would": true,
}

// extractTopics pulls distinct significant words from the user's messages.
func extractTopics(messages []model.Message) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, msg := range messages {
		if msg.Role != model.RoleUser {
			continue
		}
		for _, field := range strings.Fields(strings.ToLower(msg.Content)) {
			word := strings.Trim(field, ".,;:!?\"'()")
			if len(word) < 5 || topicStopwords[word] || seen[word] {
				continue
			}
			seen[word] = true
			topics = append(topics, word)
			if len(topics) == 8 {
				return topics
			}
		}
	}
	return topics
}

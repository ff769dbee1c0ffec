//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package memory persists, retrieves and consolidates durable user memories
// across conversations, and assembles memory context for prompt enrichment.
package memory

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/crewcall-ai/crewcall/identity"
)

// ErrEntryNotFound is returned when a memory id does not exist for a user.
var ErrEntryNotFound = errors.New("memory entry not found")

// Variant is the memory variant tag.
type Variant string

// Memory variants.
const (
	// VariantSemantic is a durable extracted fact.
	VariantSemantic Variant = "semantic"
	// VariantEpisodic is a summary of one conversation.
	VariantEpisodic Variant = "episodic"
	// VariantProcedural is a learned behavioral pattern.
	VariantProcedural Variant = "procedural"
)

// Importance orders memories for retention and consolidation.
type Importance int

// Importance levels.
const (
	ImportanceLow Importance = iota
	ImportanceMedium
	ImportanceHigh
	ImportanceCritical
)

// String returns the string representation of the importance level.
func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceMedium:
		return "medium"
	case ImportanceHigh:
		return "high"
	case ImportanceCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Entry is one durable memory record. The variant tag selects which of the
// variant-specific field groups is meaningful.
type Entry struct {
	// ID is the stable memory identifier.
	ID string `json:"id"`
	// UserID is the owning user. It never changes.
	UserID string `json:"user_id"`
	// Variant selects the variant-specific fields.
	Variant Variant `json:"variant"`
	// Content is the memory text.
	Content string `json:"content"`
	// Importance orders retention.
	Importance Importance `json:"importance"`
	// Sensitivity bounds which callers may see this memory.
	Sensitivity identity.Sensitivity `json:"sensitivity"`
	// Embedding is the content embedding vector.
	Embedding []float64 `json:"-"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"created_at"`
	// LastAccessedAt is the time of the last read that surfaced this entry.
	LastAccessedAt time.Time `json:"last_accessed_at"`
	// AccessCount counts reads that surfaced this entry.
	AccessCount int64 `json:"access_count"`
	// Consolidated marks the entry as absorbed by a near-duplicate.
	Consolidated bool `json:"consolidated,omitempty"`
	// Metadata carries free-form annotations.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Semantic fields.
	FactType   string  `json:"fact_type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Episodic fields.
	SourceConversationID string   `json:"source_conversation_id,omitempty"`
	AgentKinds           []string `json:"agent_kinds,omitempty"`
	Topics               []string `json:"topics,omitempty"`

	// Procedural fields.
	Trigger     string  `json:"trigger,omitempty"`
	Action      string  `json:"action,omitempty"`
	SuccessRate float64 `json:"success_rate,omitempty"`
	UsageCount  int64   `json:"usage_count,omitempty"`
}

// SearchFilters narrow a similarity search.
type SearchFilters struct {
	// Variant restricts results to one variant when non-empty.
	Variant Variant
	// MinImportance drops results below the given importance.
	MinImportance Importance
	// MaxAge drops results created earlier than now-MaxAge when positive.
	MaxAge time.Duration
	// Threshold is the minimum cosine similarity, 0.7 when zero.
	Threshold float64
	// TopK caps the result count, 10 when zero.
	TopK int
	// MaxSensitivity drops results above the ceiling when set.
	MaxSensitivity *identity.Sensitivity
}

// Result is one similarity-search hit.
type Result struct {
	// Entry is the matching memory.
	Entry *Entry `json:"entry"`
	// Similarity is the cosine similarity to the query embedding.
	Similarity float64 `json:"similarity"`
}

// Store is the memory persistence interface. The concrete backing is
// pluggable; reads of one user never block on writes of another.
type Store interface {
	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry *Entry) error
	// SearchBySimilarity returns the user's memories ranked by cosine
	// similarity to the embedding, filtered and sorted descending.
	SearchBySimilarity(ctx context.Context, userID string, embedding []float64,
		filters SearchFilters) ([]Result, error)
	// TouchAccess bumps access counters on the given entries.
	TouchAccess(ctx context.Context, userID string, ids []string) error
	// MarkConsolidated soft-deletes the given entries.
	MarkConsolidated(ctx context.Context, userID string, ids []string) error
	// Delete removes an entry.
	Delete(ctx context.Context, userID, id string) error
	// ListForUser returns all live (non-consolidated) entries of a user.
	ListForUser(ctx context.Context, userID string) ([]*Entry, error)
}

// Cosine returns the cosine similarity of two vectors. Mismatched or empty
// vectors score zero.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

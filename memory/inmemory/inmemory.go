//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the in-process memory store.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crewcall-ai/crewcall/memory"
)

const (
	defaultThreshold = 0.7
	defaultTopK      = 10
)

// Store is an in-process memory.Store. Entries are sharded per user so that
// reads of one user never contend with writes of another.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userShard
}

type userShard struct {
	mu      sync.RWMutex
	entries map[string]*memory.Entry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{users: make(map[string]*userShard)}
}

func (s *Store) shard(userID string, create bool) *userShard {
	s.mu.RLock()
	shard, ok := s.users[userID]
	s.mu.RUnlock()
	if ok || !create {
		return shard
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if shard, ok = s.users[userID]; ok {
		return shard
	}
	shard = &userShard{entries: make(map[string]*memory.Entry)}
	s.users[userID] = shard
	return shard
}

func cloneEntry(e *memory.Entry) *memory.Entry {
	out := *e
	out.Embedding = append([]float64(nil), e.Embedding...)
	out.AgentKinds = append([]string(nil), e.AgentKinds...)
	out.Topics = append([]string(nil), e.Topics...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Put implements the memory.Store interface.
func (s *Store) Put(ctx context.Context, entry *memory.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := cloneEntry(entry)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	shard := s.shard(stored.UserID, true)
	shard.mu.Lock()
	shard.entries[stored.ID] = stored
	shard.mu.Unlock()
	return nil
}

// SearchBySimilarity implements the memory.Store interface.
func (s *Store) SearchBySimilarity(ctx context.Context, userID string,
	embedding []float64, filters memory.SearchFilters) ([]memory.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	threshold := filters.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	topK := filters.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	var cutoff time.Time
	if filters.MaxAge > 0 {
		cutoff = time.Now().Add(-filters.MaxAge)
	}

	shard := s.shard(userID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	var results []memory.Result
	for _, e := range shard.entries {
		if e.Consolidated {
			continue
		}
		if filters.Variant != "" && e.Variant != filters.Variant {
			continue
		}
		if e.Importance < filters.MinImportance {
			continue
		}
		if !cutoff.IsZero() && e.CreatedAt.Before(cutoff) {
			continue
		}
		if filters.MaxSensitivity != nil && e.Sensitivity.Exceeds(*filters.MaxSensitivity) {
			continue
		}
		similarity := memory.Cosine(embedding, e.Embedding)
		if similarity < threshold {
			continue
		}
		results = append(results, memory.Result{Entry: cloneEntry(e), Similarity: similarity})
	}
	shard.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// TouchAccess implements the memory.Store interface.
func (s *Store) TouchAccess(ctx context.Context, userID string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := s.shard(userID, false)
	if shard == nil {
		return nil
	}
	now := time.Now()
	shard.mu.Lock()
	for _, id := range ids {
		if e, ok := shard.entries[id]; ok {
			e.AccessCount++
			e.LastAccessedAt = now
		}
	}
	shard.mu.Unlock()
	return nil
}

// MarkConsolidated implements the memory.Store interface.
func (s *Store) MarkConsolidated(ctx context.Context, userID string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := s.shard(userID, false)
	if shard == nil {
		return nil
	}
	shard.mu.Lock()
	for _, id := range ids {
		if e, ok := shard.entries[id]; ok {
			e.Consolidated = true
		}
	}
	shard.mu.Unlock()
	return nil
}

// Delete implements the memory.Store interface.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := s.shard(userID, false)
	if shard == nil {
		return memory.ErrEntryNotFound
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.entries[id]; !ok {
		return memory.ErrEntryNotFound
	}
	delete(shard.entries, id)
	return nil
}

// ListForUser implements the memory.Store interface.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*memory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := s.shard(userID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	out := make([]*memory.Entry, 0, len(shard.entries))
	for _, e := range shard.entries {
		if e.Consolidated {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

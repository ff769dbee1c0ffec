//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Cache is the read-through result cache consulted before the graph.
// Implementations are key-scoped: readers and writers on different keys
// never wait on each other. Cache errors must never fail a tool call.
type Cache interface {
	// Get returns the cached value for the key, if present and unexpired.
	Get(ctx context.Context, key string) (Record, bool, error)
	// Set stores the value under the key with the given TTL.
	Set(ctx context.Context, key string, value Record, ttl time.Duration) error
}

// CacheKey builds the canonical cache key for a tool call: the tool name
// prefixed to the sorted, lower-cased, whitespace-normalized argument set.
func CacheKey(toolName string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(toolName)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(canonicalize(fmt.Sprintf("%v", args[k])))
	}
	return b.String()
}

func canonicalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type cacheEntry struct {
	value     Record
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with lazy expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get implements the Cache interface. Expired entries are removed on read.
func (c *MemoryCache) Get(ctx context.Context, key string) (Record, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements the Cache interface.
func (c *MemoryCache) Set(ctx context.Context, key string, value Record, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries currently held, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package router

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds per-provider rolling counters. Counters only increase; the
// average latency is updated with the running-mean recurrence. Readers
// tolerate momentary inconsistency between fields.
type Stats struct {
	requests atomic.Int64
	failures atomic.Int64

	mu         sync.Mutex
	avgLatency time.Duration
}

// StatsSnapshot is a point-in-time copy of a provider's statistics.
type StatsSnapshot struct {
	// Requests is the total number of attempts, including failures.
	Requests int64 `json:"requests"`
	// Failures is the number of failed attempts.
	Failures int64 `json:"failures"`
	// AvgLatency is the running-mean latency of successful attempts.
	AvgLatency time.Duration `json:"avg_latency"`
	// SuccessRate is derived: (requests-failures)/requests, 0 when idle.
	SuccessRate float64 `json:"success_rate"`
}

// recordFailure counts a failed attempt.
func (s *Stats) recordFailure() {
	s.requests.Add(1)
	s.failures.Add(1)
}

// recordSuccess counts a successful attempt and folds its latency into the
// running mean: avg <- avg + (latency - avg) / requests.
func (s *Stats) recordSuccess(latency time.Duration) {
	n := s.requests.Add(1)
	s.mu.Lock()
	s.avgLatency += (latency - s.avgLatency) / time.Duration(n)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	requests := s.requests.Load()
	failures := s.failures.Load()
	s.mu.Lock()
	avg := s.avgLatency
	s.mu.Unlock()
	snapshot := StatsSnapshot{
		Requests:   requests,
		Failures:   failures,
		AvgLatency: avg,
	}
	if requests > 0 {
		snapshot.SuccessRate = float64(requests-failures) / float64(requests)
	}
	return snapshot
}

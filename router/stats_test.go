//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsRunningMean(t *testing.T) {
	var s Stats
	latencies := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		600 * time.Millisecond,
	}
	var sum time.Duration
	for _, latency := range latencies {
		s.recordSuccess(latency)
		sum += latency
	}
	snapshot := s.Snapshot()
	assert.Equal(t, int64(3), snapshot.Requests)
	assert.Equal(t, int64(0), snapshot.Failures)
	assert.Equal(t, 1.0, snapshot.SuccessRate)

	mean := sum / time.Duration(len(latencies))
	assert.InDelta(t, float64(mean), float64(snapshot.AvgLatency), float64(time.Millisecond))
}

func TestStatsFailuresCountTowardRequests(t *testing.T) {
	var s Stats
	s.recordSuccess(100 * time.Millisecond)
	s.recordFailure()
	s.recordFailure()
	s.recordSuccess(100 * time.Millisecond)

	snapshot := s.Snapshot()
	assert.Equal(t, int64(4), snapshot.Requests)
	assert.Equal(t, int64(2), snapshot.Failures)
	assert.Equal(t, 0.5, snapshot.SuccessRate)
}

func TestStatsIdleSnapshot(t *testing.T) {
	var s Stats
	snapshot := s.Snapshot()
	assert.Zero(t, snapshot.Requests)
	assert.Zero(t, snapshot.SuccessRate)
	assert.Zero(t, snapshot.AvgLatency)
}

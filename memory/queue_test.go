//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts ...QueueOption) *Queue {
	t.Helper()
	opts = append([]QueueOption{
		// Long poll interval so tests drive Drain explicitly.
		WithPollInterval(time.Hour),
		WithRetry(2, time.Millisecond),
	}, opts...)
	q, err := NewQueue(opts...)
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return q
}

func waitResult(t *testing.T, q *Queue, taskID string) *TaskResult {
	t.Helper()
	var result *TaskResult
	require.Eventually(t, func() bool {
		r, ok := q.Result(taskID)
		if ok {
			result = r
		}
		return ok
	}, time.Second, 2*time.Millisecond)
	return result
}

func TestQueuePriorityOrder(t *testing.T) {
	q := newTestQueue(t, WithParallelism(1))

	var mu sync.Mutex
	var order []string
	task := func(id string, priority int, taskType TaskType) Task {
		return Task{
			ID: id, Type: taskType, Priority: priority,
			Execute: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return nil
			},
		}
	}
	require.True(t, q.Enqueue(task("extraction", 3, TaskMemoryExtraction)))
	require.True(t, q.Enqueue(task("discovery", 2, TaskRelationshipDiscovery)))
	require.True(t, q.Enqueue(task("consolidation", 1, TaskMemoryConsolidation)))

	q.Drain()
	waitResult(t, q, "extraction")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"consolidation", "discovery", "extraction"}, order)
}

func TestQueueArrivalOrderBreaksPriorityTies(t *testing.T) {
	q := newTestQueue(t, WithParallelism(1))
	var mu sync.Mutex
	var order []string
	for _, id := range []string{"a", "b", "c"} {
		id := id
		require.True(t, q.Enqueue(Task{
			ID: id, Type: TaskMemoryExtraction, Priority: 1,
			Execute: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return nil
			},
		}))
	}
	q.Drain()
	waitResult(t, q, "c")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestQueueRetriesWithBackoffThenFails(t *testing.T) {
	q := newTestQueue(t)
	attempts := 0
	var mu sync.Mutex
	require.True(t, q.Enqueue(Task{
		ID: "flaky", Type: TaskMemoryExtraction,
		Execute: func(ctx context.Context) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("store unavailable")
		},
	}))
	q.Drain()

	result := waitResult(t, q, "flaky")
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Contains(t, result.Error, "store unavailable")
	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestQueueRecoversAfterRetry(t *testing.T) {
	q := newTestQueue(t)
	calls := 0
	var mu sync.Mutex
	require.True(t, q.Enqueue(Task{
		ID: "recovering", Type: TaskMemoryConsolidation,
		Execute: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		},
	}))
	q.Drain()

	result := waitResult(t, q, "recovering")
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.Attempts)
}

func TestQueueDropsExtractionOverSoftLimit(t *testing.T) {
	q := newTestQueue(t, WithSoftLimit(2))
	noop := func(ctx context.Context) error { return nil }
	require.True(t, q.Enqueue(Task{Type: TaskMemoryExtraction, Execute: noop}))
	require.True(t, q.Enqueue(Task{Type: TaskMemoryExtraction, Execute: noop}))

	assert.False(t, q.Enqueue(Task{Type: TaskMemoryExtraction, Execute: noop}))
	// Consolidation is still accepted under backpressure.
	assert.True(t, q.Enqueue(Task{Type: TaskMemoryConsolidation, Execute: noop}))
	assert.Equal(t, 3, q.Len())
}

func TestQueueResultTTL(t *testing.T) {
	q := newTestQueue(t, WithResultTTL(5*time.Millisecond))
	require.True(t, q.Enqueue(Task{
		ID: "short", Type: TaskMemoryExtraction,
		Execute: func(ctx context.Context) error { return nil },
	}))
	q.Drain()
	waitResult(t, q, "short")

	time.Sleep(10 * time.Millisecond)
	_, ok := q.Result("short")
	assert.False(t, ok)
}

func TestQueueBatchSize(t *testing.T) {
	q := newTestQueue(t, WithBatchSize(2))
	noop := func(ctx context.Context) error { return nil }
	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(Task{Type: TaskMemoryExtraction, Execute: noop}))
	}
	q.Drain()
	assert.Equal(t, 3, q.Len())
}

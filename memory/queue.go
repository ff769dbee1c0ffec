//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/crewcall-ai/crewcall/log"
)

// TaskType classifies a background task.
type TaskType string

// Background task types.
const (
	TaskMemoryExtraction      TaskType = "memory_extraction"
	TaskMemoryConsolidation   TaskType = "memory_consolidation"
	TaskRelationshipDiscovery TaskType = "relationship_discovery"
)

// Task statuses recorded in results.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	defaultParallelism  = 5
	defaultBatchSize    = 10
	defaultPollInterval = 10 * time.Second
	defaultMaxRetries   = 3
	defaultBaseBackoff  = time.Second
	defaultResultTTL    = time.Hour
	defaultSoftLimit    = 100
)

// Task is one queued unit of background work. Tasks carry their full
// re-execution context in the Execute closure so retries need no external
// state.
type Task struct {
	// ID identifies the task; assigned on enqueue when empty.
	ID string
	// Type classifies the task.
	Type TaskType
	// Priority orders the queue; smaller is higher priority.
	Priority int
	// UserID is the user the task operates on.
	UserID string
	// Execute performs the work.
	Execute func(ctx context.Context) error

	enqueuedAt time.Time
	seq        int64
}

// TaskResult is the TTL'd record of a finished task.
type TaskResult struct {
	// TaskID is the finished task.
	TaskID string `json:"task_id"`
	// Type is the task type.
	Type TaskType `json:"type"`
	// Status is completed or failed.
	Status string `json:"status"`
	// Error is the final error text of a failed task.
	Error string `json:"error,omitempty"`
	// Attempts is how many executions were made.
	Attempts int `json:"attempts"`
	// FinishedAt is when the task left the in-flight set.
	FinishedAt time.Time `json:"finished_at"`

	expiresAt time.Time
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the background processing queue: a priority heap drained in
// batches by a bounded worker pool, with per-task retry budgets and TTL'd
// result records.
type Queue struct {
	mu       sync.Mutex
	tasks    taskHeap
	results  map[string]*TaskResult
	inflight int
	seq      int64

	pool         *ants.Pool
	parallelism  int
	batchSize    int
	pollInterval time.Duration
	maxRetries   int
	baseBackoff  time.Duration
	resultTTL    time.Duration
	softLimit    int

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithParallelism bounds concurrent task executions, 5 by default.
func WithParallelism(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.parallelism = n
		}
	}
}

// WithBatchSize sets how many tasks one poll drains, 10 by default.
func WithBatchSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithPollInterval sets the drain interval, 10s by default.
func WithPollInterval(interval time.Duration) QueueOption {
	return func(q *Queue) {
		if interval > 0 {
			q.pollInterval = interval
		}
	}
}

// WithRetry sets the retry budget and base backoff.
func WithRetry(maxRetries int, baseBackoff time.Duration) QueueOption {
	return func(q *Queue) {
		if maxRetries >= 0 {
			q.maxRetries = maxRetries
		}
		if baseBackoff > 0 {
			q.baseBackoff = baseBackoff
		}
	}
}

// WithResultTTL sets how long finished-task records are kept, 1h by default.
func WithResultTTL(ttl time.Duration) QueueOption {
	return func(q *Queue) {
		if ttl > 0 {
			q.resultTTL = ttl
		}
	}
}

// WithSoftLimit sets the queue length beyond which new extraction tasks
// are dropped, 100 by default.
func WithSoftLimit(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.softLimit = n
		}
	}
}

// NewQueue creates the queue and starts its worker pool and poll loop.
func NewQueue(opts ...QueueOption) (*Queue, error) {
	q := &Queue{
		results:      make(map[string]*TaskResult),
		parallelism:  defaultParallelism,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		maxRetries:   defaultMaxRetries,
		baseBackoff:  defaultBaseBackoff,
		resultTTL:    defaultResultTTL,
		softLimit:    defaultSoftLimit,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	pool, err := ants.NewPool(q.parallelism)
	if err != nil {
		return nil, err
	}
	q.pool = pool
	q.wg.Add(1)
	go q.loop()
	return q, nil
}

// Enqueue adds a task to the queue. Under backpressure new extraction tasks
// are dropped with a warning; higher-value task types are always accepted.
// Returns whether the task was accepted.
func (q *Queue) Enqueue(task Task) bool {
	if task.Execute == nil {
		return false
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.enqueuedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) >= q.softLimit && task.Type == TaskMemoryExtraction {
		log.Warnf("memory queue over soft limit (%d), dropping extraction task for user %s",
			q.softLimit, task.UserID)
		return false
	}
	q.seq++
	task.seq = q.seq
	heap.Push(&q.tasks, &task)
	return true
}

// Len returns the number of queued (not in-flight) tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Result returns the result record of a finished task, if still retained.
func (q *Queue) Result(taskID string) (*TaskResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[taskID]
	if !ok || time.Now().After(r.expiresAt) {
		return nil, false
	}
	out := *r
	return &out, true
}

// Drain synchronously pops and dispatches one batch. The poll loop calls
// it on every tick; tests call it directly.
func (q *Queue) Drain() {
	q.mu.Lock()
	batch := make([]*Task, 0, q.batchSize)
	for len(batch) < q.batchSize && q.tasks.Len() > 0 {
		batch = append(batch, heap.Pop(&q.tasks).(*Task))
	}
	q.inflight += len(batch)
	now := time.Now()
	for id, r := range q.results {
		if now.After(r.expiresAt) {
			delete(q.results, id)
		}
	}
	q.mu.Unlock()

	for _, task := range batch {
		task := task
		if err := q.pool.Submit(func() { q.run(task) }); err != nil {
			log.Errorf("submit background task %s: %v", task.ID, err)
			q.finish(task, StatusFailed, err.Error(), 0)
		}
	}
}

func (q *Queue) loop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			q.Drain()
		}
	}
}

// run executes a task with its retry budget and exponential backoff.
func (q *Queue) run(task *Task) {
	ctx := context.Background()
	backoff := q.baseBackoff
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		attempts++
		if lastErr = task.Execute(ctx); lastErr == nil {
			q.finish(task, StatusCompleted, "", attempts)
			return
		}
		if attempt == q.maxRetries {
			break
		}
		select {
		case <-q.done:
			q.finish(task, StatusFailed, lastErr.Error(), attempts)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	log.Warnf("background task %s (%s) failed after %d attempts: %v",
		task.ID, task.Type, attempts, lastErr)
	q.finish(task, StatusFailed, lastErr.Error(), attempts)
}

func (q *Queue) finish(task *Task, status, errText string, attempts int) {
	now := time.Now()
	q.mu.Lock()
	q.inflight--
	q.results[task.ID] = &TaskResult{
		TaskID:     task.ID,
		Type:       task.Type,
		Status:     status,
		Error:      errText,
		Attempts:   attempts,
		FinishedAt: now,
		expiresAt:  now.Add(q.resultTTL),
	}
	q.mu.Unlock()
}

// Close stops the poll loop and releases the worker pool. Queued tasks that
// were never dispatched are discarded.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.wg.Wait()
		q.pool.Release()
	})
}

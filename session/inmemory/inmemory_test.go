//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/session"
)

func newConversation(id, userID string) *session.Conversation {
	return &session.Conversation{
		ID:     id,
		UserID: userID,
		Messages: []model.Message{
			model.NewUserMessage("hello"),
		},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newConversation("c1", "u1")))
	got, ok, err := s.GetLatest(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Len(t, got.Messages, 1)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newConversation("c1", "u1")))

	first, _, err := s.GetLatest(ctx, "c1")
	require.NoError(t, err)
	first.Messages = append(first.Messages, model.NewAssistantMessage("mutated"))

	second, _, err := s.GetLatest(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, second.Messages, 1)
}

func TestTTLExpiry(t *testing.T) {
	s := NewService(WithTTL(10*time.Millisecond), WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newConversation("c1", "u1")))

	time.Sleep(30 * time.Millisecond)
	_, ok, err := s.GetLatest(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListByUser(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newConversation("c1", "u1")))
	require.NoError(t, s.Put(ctx, newConversation("c2", "u1")))
	require.NoError(t, s.Put(ctx, newConversation("c3", "u2")))

	list, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCleanupOlderThan(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, newConversation("c1", "u1")))

	time.Sleep(20 * time.Millisecond)
	removed, err := s.CleanupOlderThan(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveConversations)
}

func TestListAndCleanupSkipLockOnlyEntries(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()

	// A first-turn lock creates an entry with no conversation stored yet.
	unlock, err := s.Lock(ctx, "c1")
	require.NoError(t, err)
	defer unlock()
	require.NoError(t, s.Put(ctx, newConversation("c2", "u1")))

	list, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	removed, err := s.CleanupOlderThan(ctx, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestLockSerializesTurns(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	ctx := context.Background()

	unlock, err := s.Lock(ctx, "c1")
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock2, err := s.Lock(ctx, "c1")
		if err != nil {
			return
		}
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		unlock2()
	}()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlock()
	wg.Wait()

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestLockHonorsContext(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()

	unlock, err := s.Lock(context.Background(), "c1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnlockIsIdempotent(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	defer s.Close()
	unlock, err := s.Lock(context.Background(), "c1")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock2, err := s.Lock(context.Background(), "c1")
	require.NoError(t, err)
	unlock2()
}

func TestClosedServiceRejectsWrites(t *testing.T) {
	s := NewService(WithSweepInterval(0))
	require.NoError(t, s.Close())
	err := s.Put(context.Background(), newConversation("c1", "u1"))
	assert.ErrorIs(t, err, session.ErrServiceClosed)
}

//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the in-process session service.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/session"
)

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

type entry struct {
	conversation *session.Conversation
	expiresAt    time.Time
	// turnLock serializes turns on this conversation. Capacity one; the
	// holder owns the token.
	turnLock chan struct{}
}

// Service is an in-process session.Service with lazy and periodic expiry.
type Service struct {
	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	ttl           time.Duration
	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// ServiceOpts configures the in-memory service.
type ServiceOpts func(*Service)

// WithTTL sets the conversation TTL, 30 minutes by default.
func WithTTL(ttl time.Duration) ServiceOpts {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSweepInterval sets the periodic sweep interval, 5 minutes by default.
// A non-positive interval disables the sweeper.
func WithSweepInterval(interval time.Duration) ServiceOpts {
	return func(s *Service) {
		s.sweepInterval = interval
	}
}

// NewService creates an in-memory session service and starts its sweeper.
func NewService(opts ...ServiceOpts) *Service {
	s := &Service{
		entries:       make(map[string]*entry),
		ttl:           defaultTTL,
		sweepInterval: defaultSweepInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval > 0 {
		go s.sweep()
	}
	return s
}

func (s *Service) sweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.removeExpired(); n > 0 {
				log.Debugf("session sweep removed %d expired conversations", n)
			}
		}
	}
}

func (s *Service) removeExpired() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// getLive returns the unexpired entry, removing it lazily when expired.
func (s *Service) getLive(conversationID string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[conversationID]
	expired := ok && time.Now().After(e.expiresAt)
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if expired {
		s.mu.Lock()
		if cur, ok := s.entries[conversationID]; ok && time.Now().After(cur.expiresAt) {
			delete(s.entries, conversationID)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e, true
}

// Put implements the session.Service interface.
func (s *Service) Put(ctx context.Context, conversation *session.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := conversation.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = time.Now()
	conversation.UpdatedAt = stored.UpdatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrServiceClosed
	}
	e, ok := s.entries[stored.ID]
	if !ok {
		e = &entry{turnLock: make(chan struct{}, 1)}
		s.entries[stored.ID] = e
	}
	e.conversation = stored
	e.expiresAt = time.Now().Add(s.ttl)
	return nil
}

// GetLatest implements the session.Service interface.
func (s *Service) GetLatest(ctx context.Context, conversationID string) (*session.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	e, ok := s.getLive(conversationID)
	if !ok {
		return nil, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e.conversation == nil {
		return nil, false, nil
	}
	return e.conversation.Clone(), true, nil
}

// ListByUser implements the session.Service interface.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*session.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*session.Conversation
	for _, e := range s.entries {
		// Lock-created entries have no conversation yet.
		if e.conversation == nil || now.After(e.expiresAt) || e.conversation.UserID != userID {
			continue
		}
		out = append(out, e.conversation.Clone())
	}
	return out, nil
}

// Delete implements the session.Service interface.
func (s *Service) Delete(ctx context.Context, conversationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, conversationID)
	s.mu.Unlock()
	return nil
}

// CleanupOlderThan implements the session.Service interface.
func (s *Service) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.conversation == nil {
			continue
		}
		if e.conversation.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Lock implements the session.Service interface. The lock outlives entry
// expiry: an expired conversation still serializes its in-flight turns.
func (s *Service) Lock(ctx context.Context, conversationID string) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, session.ErrServiceClosed
	}
	e, ok := s.entries[conversationID]
	if !ok {
		e = &entry{turnLock: make(chan struct{}, 1)}
		s.entries[conversationID] = e
		e.expiresAt = time.Now().Add(s.ttl)
	}
	s.mu.Unlock()

	select {
	case e.turnLock <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-e.turnLock })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats implements the session.Service interface.
func (s *Service) Stats(ctx context.Context) (session.Stats, error) {
	if err := ctx.Err(); err != nil {
		return session.Stats{}, err
	}
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := 0
	for _, e := range s.entries {
		if !now.After(e.expiresAt) && e.conversation != nil {
			active++
		}
	}
	return session.Stats{ActiveConversations: active}, nil
}

// Close implements the session.Service interface.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return nil
}

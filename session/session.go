//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package session persists per-conversation state between turns and
// serializes concurrent turns on the same conversation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/crewcall-ai/crewcall/model"
)

// ErrServiceClosed is returned by operations on a closed service.
var ErrServiceClosed = errors.New("session service closed")

// Conversation is the durable thread of turns for one user.
type Conversation struct {
	// ID is the stable conversation identifier.
	ID string `json:"id"`
	// UserID is the owning user.
	UserID string `json:"user_id"`
	// Messages is the append-only ordered message log.
	Messages []model.Message `json:"messages"`
	// Checkpoint is the name of the most recently completed graph node.
	Checkpoint string `json:"checkpoint,omitempty"`
	// AgentKinds lists the agent kinds that participated.
	AgentKinds []string `json:"agent_kinds,omitempty"`
	// CreatedAt is the creation time of the conversation.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to mutate.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]model.Message(nil), c.Messages...)
	out.AgentKinds = append([]string(nil), c.AgentKinds...)
	return &out
}

// Stats is a point-in-time summary of the store for the status surface.
type Stats struct {
	// ActiveConversations is the number of unexpired conversations.
	ActiveConversations int `json:"active_conversations"`
}

// Service is the conversation checkpoint store. Operations on a single
// conversation id are serializable; turns acquire the conversation lock
// before mutating.
type Service interface {
	// Put stores the conversation, refreshing its TTL.
	Put(ctx context.Context, conversation *Conversation) error
	// GetLatest returns the current state of the conversation.
	GetLatest(ctx context.Context, conversationID string) (*Conversation, bool, error)
	// ListByUser returns all unexpired conversations owned by the user.
	ListByUser(ctx context.Context, userID string) ([]*Conversation, error)
	// Delete removes the conversation.
	Delete(ctx context.Context, conversationID string) error
	// CleanupOlderThan removes conversations not updated within age and
	// returns how many were removed.
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
	// Lock acquires the per-conversation turn lock, blocking until the
	// holder releases it or ctx is done. The returned function releases.
	Lock(ctx context.Context, conversationID string) (func(), error)
	// Stats returns store statistics.
	Stats(ctx context.Context) (Stats, error)
	// Close stops background sweeping.
	Close() error
}

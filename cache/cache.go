// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a TTL read-through cache of chat membership, used by
// the fanout stage to avoid a storage round trip per message.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how stale a membership snapshot may be.
const DefaultTTL = time.Second

// MemberSource is the authoritative source of chat membership. Satisfied by
// storage.Store.
type MemberSource interface {
	MembersOf(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)
}

type entry struct {
	members   []uuid.UUID
	fetchedAt time.Time
}

// Members caches chat member sets for up to a fixed TTL. Entries are replaced
// wholesale on refresh and never actively evicted. Concurrent misses for the
// same chat may each query the source; the query is an idempotent read, so the
// only cost is a redundant fetch.
type Members struct {
	mu      sync.RWMutex
	source  MemberSource
	ttl     time.Duration
	entries map[uuid.UUID]entry
}

// NewMembers creates a membership cache backed by source. A non-positive ttl
// falls back to DefaultTTL.
func NewMembers(source MemberSource, ttl time.Duration) *Members {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Members{
		source:  source,
		ttl:     ttl,
		entries: make(map[uuid.UUID]entry),
	}
}

// Resolve returns the member set of a chat, from cache when a fresh entry
// exists, otherwise from the source. The returned slice is a shared snapshot
// and must not be mutated by callers.
func (c *Members) Resolve(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	c.mu.RLock()
	e, ok := c.entries[chatID]
	c.mu.RUnlock()

	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.members, nil
	}

	members, err := c.source.MembersOf(ctx, chatID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[chatID] = entry{members: members, fetchedAt: time.Now()}
	c.mu.Unlock()

	return members, nil
}

// Len returns the number of cached chats.
func (c *Members) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

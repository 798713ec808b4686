// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource is a MemberSource that counts fetches per chat.
type countingSource struct {
	mu      sync.Mutex
	members map[uuid.UUID][]uuid.UUID
	calls   map[uuid.UUID]int
	err     error
}

func newCountingSource() *countingSource {
	return &countingSource{
		members: make(map[uuid.UUID][]uuid.UUID),
		calls:   make(map[uuid.UUID]int),
	}
}

func (s *countingSource) MembersOf(_ context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[chatID]++
	if s.err != nil {
		return nil, s.err
	}
	return s.members[chatID], nil
}

func (s *countingSource) callCount(chatID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[chatID]
}

func TestResolveFreshEntrySkipsSource(t *testing.T) {
	src := newCountingSource()
	chatID := uuid.New()
	want := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	src.members[chatID] = want

	c := NewMembers(src, time.Minute)

	first, err := c.Resolve(context.Background(), chatID)
	require.NoError(t, err)
	assert.Equal(t, want, first)

	second, err := c.Resolve(context.Background(), chatID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, src.callCount(chatID), "fresh entry must not hit the source")
}

func TestResolveExpiredEntryRefetches(t *testing.T) {
	src := newCountingSource()
	chatID := uuid.New()
	src.members[chatID] = []uuid.UUID{uuid.New()}

	c := NewMembers(src, 10*time.Millisecond)

	_, err := c.Resolve(context.Background(), chatID)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Membership changed at the source; the expired entry must be replaced.
	updated := []uuid.UUID{uuid.New(), uuid.New()}
	src.mu.Lock()
	src.members[chatID] = updated
	src.mu.Unlock()

	got, err := c.Resolve(context.Background(), chatID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, 2, src.callCount(chatID))
}

func TestResolveSourceErrorPropagates(t *testing.T) {
	src := newCountingSource()
	src.err = errors.New("storage down")

	c := NewMembers(src, time.Second)

	_, err := c.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, 0, c.Len(), "failed fetches must not populate the cache")
}

func TestResolveDistinctChatsAreIndependent(t *testing.T) {
	src := newCountingSource()
	a, b := uuid.New(), uuid.New()
	src.members[a] = []uuid.UUID{uuid.New()}
	src.members[b] = []uuid.UUID{uuid.New(), uuid.New()}

	c := NewMembers(src, time.Minute)

	gotA, err := c.Resolve(context.Background(), a)
	require.NoError(t, err)
	gotB, err := c.Resolve(context.Background(), b)
	require.NoError(t, err)

	assert.Len(t, gotA, 1)
	assert.Len(t, gotB, 2)
	assert.Equal(t, 2, c.Len())
}

func TestDefaultTTLFallback(t *testing.T) {
	c := NewMembers(newCountingSource(), 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}

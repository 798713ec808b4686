// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/chatflux/storage"
)

func TestUserLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, uuid.Nil, user.UserID)

	got, err := s.GetUser(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChatLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	members := []uuid.UUID{uuid.New(), uuid.New()}

	chat, err := s.CreateChat(ctx, "general", members)
	require.NoError(t, err)
	assert.Equal(t, "general", chat.Name)
	assert.Equal(t, members, chat.Members)

	got, err := s.GetChat(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, got.ChatID)

	gotMembers, err := s.MembersOf(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.Equal(t, members, gotMembers)

	_, err = s.MembersOf(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMembersSnapshotIsIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "general", []uuid.UUID{uuid.New()})
	require.NoError(t, err)

	first, err := s.MembersOf(ctx, chat.ChatID)
	require.NoError(t, err)
	first[0] = uuid.New()

	second, err := s.MembersOf(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.NotEqual(t, first[0], second[0], "callers must not mutate stored members")
}

func TestMessageInsertAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	chatID := uuid.New()

	for _, content := range []string{"one", "two", "three"} {
		err := s.InsertMessage(ctx, storage.Message{
			MessageID: content,
			ChatID:    chatID,
			SenderID:  uuid.New(),
			Content:   content,
		})
		require.NoError(t, err)
	}

	msgs, err := s.MessagesOf(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	empty, err := s.MessagesOf(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInsertMessagesBatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	batch := []storage.Message{
		{MessageID: "1", ChatID: a, SenderID: uuid.New(), Content: "for a"},
		{MessageID: "2", ChatID: b, SenderID: uuid.New(), Content: "for b"},
		{MessageID: "3", ChatID: a, SenderID: uuid.New(), Content: "also for a"},
	}
	require.NoError(t, s.InsertMessages(ctx, batch))

	msgsA, err := s.MessagesOf(ctx, a)
	require.NoError(t, err)
	assert.Len(t, msgsA, 2)

	msgsB, err := s.MessagesOf(ctx, b)
	require.NoError(t, err)
	assert.Len(t, msgsB, 1)
}

func TestPing(t *testing.T) {
	assert.NoError(t, New().Ping(context.Background()))
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory Store implementation for tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/chatflux/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]storage.User
	chats    map[uuid.UUID]storage.Chat
	messages map[uuid.UUID][]storage.Message
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]storage.User),
		chats:    make(map[uuid.UUID]storage.Chat),
		messages: make(map[uuid.UUID][]storage.Message),
	}
}

// CreateUser creates a new user record.
func (s *Store) CreateUser(_ context.Context, username string) (storage.User, error) {
	now := time.Now().UTC()
	user := storage.User{
		UserID:    uuid.New(),
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.UserID] = user
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, userID uuid.UUID) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return user, nil
}

// CreateChat creates a new chat with the given member set.
func (s *Store) CreateChat(_ context.Context, name string, members []uuid.UUID) (storage.Chat, error) {
	chat := storage.Chat{
		ChatID:    uuid.New(),
		Name:      name,
		Members:   append([]uuid.UUID(nil), members...),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats[chat.ChatID] = chat
	return chat, nil
}

// GetChat retrieves a chat by ID.
func (s *Store) GetChat(_ context.Context, chatID uuid.UUID) (storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return storage.Chat{}, storage.ErrNotFound
	}
	chat.Members = append([]uuid.UUID(nil), chat.Members...)
	return chat, nil
}

// MembersOf returns the member set of a chat.
func (s *Store) MembersOf(_ context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]uuid.UUID(nil), chat.Members...), nil
}

// InsertMessage appends a message to its chat.
func (s *Store) InsertMessage(_ context.Context, msg storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	return nil
}

// InsertMessages appends a batch of messages.
func (s *Store) InsertMessages(_ context.Context, msgs []storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range msgs {
		s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	}
	return nil
}

// MessagesOf returns all messages of a chat in insertion order.
func (s *Store) MessagesOf(_ context.Context, chatID uuid.UUID) ([]storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]storage.Message(nil), s.messages[chatID]...), nil
}

// Ping reports whether the store is reachable. Always nil for memory.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close releases store resources. No-op for memory.
func (s *Store) Close() {}

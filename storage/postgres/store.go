// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package postgres provides a PostgreSQL-backed Store using pgx connection
// pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/absmach/chatflux/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with a connection pool and verifies
// connectivity.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// CreateUser creates a new user record.
func (s *Store) CreateUser(ctx context.Context, username string) (storage.User, error) {
	var user storage.User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, username, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING user_id, username, created_at, updated_at
	`, uuid.New(), username).Scan(&user.UserID, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return storage.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (storage.User, error) {
	var user storage.User
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, username, created_at, updated_at
		FROM users WHERE user_id = $1
	`, userID).Scan(&user.UserID, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// CreateChat creates a new chat with the given member set.
func (s *Store) CreateChat(ctx context.Context, name string, members []uuid.UUID) (storage.Chat, error) {
	var chat storage.Chat
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chats (chat_id, name, members, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING chat_id, name, members, created_at
	`, uuid.New(), name, members).Scan(&chat.ChatID, &chat.Name, &chat.Members, &chat.CreatedAt)
	if err != nil {
		return storage.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

// GetChat retrieves a chat by ID.
func (s *Store) GetChat(ctx context.Context, chatID uuid.UUID) (storage.Chat, error) {
	var chat storage.Chat
	err := s.pool.QueryRow(ctx, `
		SELECT chat_id, name, members, created_at
		FROM chats WHERE chat_id = $1
	`, chatID).Scan(&chat.ChatID, &chat.Name, &chat.Members, &chat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Chat{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Chat{}, fmt.Errorf("select chat: %w", err)
	}
	return chat, nil
}

// MembersOf returns the member set of a chat.
func (s *Store) MembersOf(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	var members []uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT members FROM chats WHERE chat_id = $1
	`, chatID).Scan(&members)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	return members, nil
}

// InsertMessage persists one message.
func (s *Store) InsertMessage(ctx context.Context, msg storage.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (message_id, chat_id, sender_id, content)
		VALUES ($1, $2, $3, $4)
	`, msg.MessageID, msg.ChatID, msg.SenderID, msg.Content)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// InsertMessages persists a batch of messages in a single round trip.
func (s *Store) InsertMessages(ctx context.Context, msgs []storage.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, msg := range msgs {
		batch.Queue(`
			INSERT INTO messages (message_id, chat_id, sender_id, content)
			VALUES ($1, $2, $3, $4)
		`, msg.MessageID, msg.ChatID, msg.SenderID, msg.Content)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range msgs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert message batch: %w", err)
		}
	}
	return nil
}

// MessagesOf returns all messages of a chat ordered by message ID, which is
// creation order because IDs are ULIDs.
func (s *Store) MessagesOf(ctx context.Context, chatID uuid.UUID) ([]storage.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, chat_id, sender_id, content
		FROM messages WHERE chat_id = $1
		ORDER BY message_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var msgs []storage.Message
	for rows.Next() {
		var msg storage.Message
		if err := rows.Scan(&msg.MessageID, &msg.ChatID, &msg.SenderID, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return msgs, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

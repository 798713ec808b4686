// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the chat data model and the persistence boundary
// used by the distribution pipeline and the API surface.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message is a single chat message. MessageID is a ULID assigned exactly once
// when the message is accepted for publishing; it is globally unique and
// lexicographically ordered by creation time. Messages are immutable after
// creation.
type Message struct {
	MessageID string    `json:"message_id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
}

// User is a registered chat user.
type User struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chat is a conversation with a fixed member set.
type Chat struct {
	ChatID    uuid.UUID   `json:"chat_id"`
	Name      string      `json:"name"`
	Members   []uuid.UUID `json:"members"`
	CreatedAt time.Time   `json:"created_at"`
}

// Store is the durable persistence boundary. The pipeline treats all failures
// as opaque; it does not interpret error subtypes beyond "failed".
type Store interface {
	CreateUser(ctx context.Context, username string) (User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (User, error)

	CreateChat(ctx context.Context, name string, members []uuid.UUID) (Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (Chat, error)

	// MembersOf returns the authoritative member set of a chat.
	MembersOf(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)

	InsertMessage(ctx context.Context, msg Message) error
	// InsertMessages persists a batch of messages in one round trip. Used for
	// bulk backfill; the pipeline itself inserts one message at a time.
	InsertMessages(ctx context.Context, msgs []Message) error
	MessagesOf(ctx context.Context, chatID uuid.UUID) ([]Message, error)

	Ping(ctx context.Context) error
	Close()
}

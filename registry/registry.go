// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks which users currently hold a live connection and
// the bounded mailbox each of them is deliverable through.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/absmach/chatflux/storage"
)

// DefaultMailboxSize is the per-user mailbox capacity.
const DefaultMailboxSize = 128

// Mailbox is a bounded, ordered queue of messages bridging the fanout stage
// and one live connection. It has a single consumer: the transport's drain
// loop.
type Mailbox struct {
	ch chan storage.Message
}

// TryEnqueue attempts a non-blocking enqueue. It returns false and drops the
// message when the mailbox is full.
func (m *Mailbox) TryEnqueue(msg storage.Message) bool {
	select {
	case m.ch <- msg:
		return true
	default:
		return false
	}
}

// C returns the receive side of the mailbox.
func (m *Mailbox) C() <-chan storage.Message {
	return m.ch
}

// Registry is a concurrency-safe map from user ID to mailbox. Reads (Deliver,
// on every fanout) vastly outnumber writes (Register/Deregister, on
// connection churn).
type Registry struct {
	mu          sync.RWMutex
	mailboxSize int
	conns       map[uuid.UUID]*Mailbox
}

// New creates a registry. A non-positive mailboxSize falls back to
// DefaultMailboxSize.
func New(mailboxSize int) *Registry {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	return &Registry{
		mailboxSize: mailboxSize,
		conns:       make(map[uuid.UUID]*Mailbox),
	}
}

// Register creates a fresh mailbox for a user and installs it, replacing any
// existing one. A replaced mailbox is orphaned: it is no longer delivered to,
// and its previous consumer drains whatever it already holds.
// Last-connected-wins; there is no multi-connection fanout.
func (r *Registry) Register(userID uuid.UUID) *Mailbox {
	mb := &Mailbox{ch: make(chan storage.Message, r.mailboxSize)}

	r.mu.Lock()
	r.conns[userID] = mb
	r.mu.Unlock()

	return mb
}

// Deregister removes a user's mailbox, but only if mb is still the installed
// one. A connection whose mailbox was already replaced by a newer Register
// must not tear down its successor's entry on the way out.
func (r *Registry) Deregister(userID uuid.UUID, mb *Mailbox) {
	r.mu.Lock()
	if r.conns[userID] == mb {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
}

// Deliver attempts a non-blocking enqueue into a user's mailbox. It returns
// false when the user has no live connection or their mailbox is full; either
// way the message is dropped for that user and the caller is never blocked.
func (r *Registry) Deliver(userID uuid.UUID, msg storage.Message) bool {
	r.mu.RLock()
	mb, ok := r.conns[userID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return mb.TryEnqueue(msg)
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close drops all entries. Called once at process shutdown; mailboxes are
// left open for their consumers to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	r.conns = make(map[uuid.UUID]*Mailbox)
	r.mu.Unlock()
}

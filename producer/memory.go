// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"context"
	"sync"

	"github.com/absmach/chatflux/storage"
)

var _ Producer = (*Memory)(nil)

// Memory is an in-memory Producer that records published messages. Used in
// tests in place of a broker.
type Memory struct {
	mu        sync.Mutex
	published []storage.Message
	err       error
}

// NewMemory creates an in-memory producer.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish stamps and records the message.
func (p *Memory) Publish(_ context.Context, msg storage.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	stampMessage(&msg)
	p.published = append(p.published, msg)
	return nil
}

// Close is a no-op.
func (p *Memory) Close() error { return nil }

// Published returns a copy of all recorded messages.
func (p *Memory) Published() []storage.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]storage.Message(nil), p.published...)
}

// FailWith makes subsequent publishes return err.
func (p *Memory) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

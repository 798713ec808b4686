// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package producer publishes accepted chat messages to the broker topic.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"

	"github.com/absmach/chatflux/storage"
)

// Producer publishes a message to the broker. A nil error means the broker
// acknowledged the record: the message is accepted, not yet persisted or
// delivered. Persistence and fanout happen only when the record round-trips
// through the consumer pipeline.
type Producer interface {
	Publish(ctx context.Context, msg storage.Message) error
	Close() error
}

var _ Producer = (*Kafka)(nil)

// Kafka publishes messages to a Kafka topic keyed by sender ID, which
// preserves the relative order of messages from the same sender. It does not
// order messages across senders.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafka creates a Kafka producer for the given topic.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}

	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: logger,
	}
}

// Publish assigns the message its ID if unset, serializes it and writes one
// record to the topic. It blocks until the broker acknowledges the write or
// ctx is abandoned; failures surface to the caller, there is no internal
// retry-and-hide.
func (p *Kafka) Publish(ctx context.Context, msg storage.Message) error {
	stampMessage(&msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.SenderID.String()),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug("message_published",
		slog.String("message_id", msg.MessageID),
		slog.String("chat_id", msg.ChatID.String()),
		slog.String("sender_id", msg.SenderID.String()))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Kafka) Close() error {
	return p.writer.Close()
}

// stampMessage assigns a time-ordered unique ID. Assigned once: a message that
// already carries an ID keeps it.
func stampMessage(msg *storage.Message) {
	if msg.MessageID == "" {
		msg.MessageID = ulid.Make().String()
	}
}

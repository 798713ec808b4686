// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package consumer implements the broker-consuming pipeline: it joins a
// consumer group on the chat topic and, for each record, decodes, persists,
// resolves recipients and fans out to live connections.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/absmach/chatflux/cache"
	"github.com/absmach/chatflux/registry"
	"github.com/absmach/chatflux/server/otel"
	"github.com/absmach/chatflux/storage"
)

// Config holds pipeline settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	// MaxConcurrency bounds how many records one session processes at once.
	// Enough to saturate the I/O-bound stages without unbounded growth.
	MaxConcurrency int

	// RestartDelay is waited before reconnecting after a clean stream end,
	// ErrorRestartDelay after a stream error.
	RestartDelay      time.Duration
	ErrorRestartDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 100
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = time.Second
	}
	if c.ErrorRestartDelay <= 0 {
		c.ErrorRestartDelay = 5 * time.Second
	}
	return c
}

// MessageStore is the slice of the persistence boundary the pipeline needs.
// Satisfied by storage.Store.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg storage.Message) error
}

// Source is one broker session's record stream. Satisfied by *kafka.Reader.
type Source interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Pipeline consumes the chat topic and distributes each message. Per-record
// failures are contained at the record boundary; only stream-level failures
// tear down the session, which the Run loop restarts with backoff.
type Pipeline struct {
	cfg      Config
	store    MessageStore
	members  *cache.Members
	registry *registry.Registry
	metrics  *otel.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger

	// newSource is swapped in tests; the default opens a consumer-group
	// reader against the configured topic.
	newSource func() Source
}

// New creates a pipeline. metrics and tracer may be nil.
func New(cfg Config, store MessageStore, members *cache.Members, reg *registry.Registry, metrics *otel.Metrics, tracer trace.Tracer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		members:  members,
		registry: reg,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
	}
	p.newSource = func() Source {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   cfg.Topic,
		})
	}
	return p
}

// Run supervises consumer sessions until ctx is cancelled. A session that
// ends (cleanly or with an error) is restarted after a delay; cancellation is
// checked between sessions, so shutdown takes at most one session's drain
// time.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("consumer_stopped")
			return
		}

		delay := p.cfg.RestartDelay
		if err := p.consume(ctx); err != nil {
			p.logger.Error("consumer_session_failed",
				slog.String("topic", p.cfg.Topic),
				slog.String("group_id", p.cfg.GroupID),
				slog.String("error", err.Error()))
			delay = p.cfg.ErrorRestartDelay
		}

		select {
		case <-ctx.Done():
			p.logger.Info("consumer_stopped")
			return
		case <-time.After(delay):
		}
	}
}

// consume runs a single consumer session. It returns nil when the stream
// ended because ctx was cancelled, otherwise the stream error. In-flight
// records are drained before the session is torn down.
func (p *Pipeline) consume(ctx context.Context) error {
	src := p.newSource()
	defer src.Close()

	p.logger.Info("consumer_session_started",
		slog.String("topic", p.cfg.Topic),
		slog.String("group_id", p.cfg.GroupID))

	sem := make(chan struct{}, p.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		rec, err := src.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read record: %w", err)
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(payload []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			// The reader has already advanced past this record, so it must be
			// finished even while the session is tearing down. Cancellation
			// stops new reads, not records already handed off.
			p.process(context.WithoutCancel(ctx), payload)
		}(rec.Value)
	}
}

// process handles one record. Every failure is terminal for this record only:
// it is logged, counted and the stream moves on.
func (p *Pipeline) process(ctx context.Context, payload []byte) {
	startTotal := time.Now()

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "process_message",
			trace.WithAttributes(attribute.Int("raw_message_size", len(payload))))
		defer span.End()
	}

	startDecode := time.Now()
	var msg storage.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.logger.Warn("record_decode_failed", slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.RecordDecodeFailure()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.RecordDecode(float64(time.Since(startDecode).Microseconds()) / 1000)
	}

	startPersist := time.Now()
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		p.logger.Error("message_persist_failed",
			slog.String("message_id", msg.MessageID),
			slog.String("chat_id", msg.ChatID.String()),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.RecordPersistFailure()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.RecordPersist(float64(time.Since(startPersist).Microseconds()) / 1000)
	}

	startFanout := time.Now()
	members, err := p.members.Resolve(ctx, msg.ChatID)
	if err != nil {
		p.logger.Error("member_resolve_failed",
			slog.String("chat_id", msg.ChatID.String()),
			slog.String("error", err.Error()))
		return
	}

	var delivered, dropped int64
	for _, userID := range members {
		if p.registry.Deliver(userID, msg) {
			delivered++
		} else {
			dropped++
		}
	}
	if p.metrics != nil {
		p.metrics.RecordFanout(float64(time.Since(startFanout).Microseconds())/1000, delivered, dropped)
		p.metrics.RecordProcessed(float64(time.Since(startTotal).Microseconds()) / 1000)
	}

	p.logger.Debug("message_distributed",
		slog.String("message_id", msg.MessageID),
		slog.String("chat_id", msg.ChatID.String()),
		slog.Int64("delivered", delivered),
		slog.Int64("dropped", dropped))
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the distribution core.
type Metrics struct {
	meter metric.Meter

	// Counters
	messagesProcessed metric.Int64Counter
	decodeFailures    metric.Int64Counter
	persistFailures   metric.Int64Counter
	messagesDelivered metric.Int64Counter
	messagesDropped   metric.Int64Counter

	// Gauges
	consumerLag        metric.Int64Gauge
	connectionsCurrent metric.Int64UpDownCounter

	// Histograms
	decodeDuration     metric.Float64Histogram
	persistDuration    metric.Float64Histogram
	fanoutDuration     metric.Float64Histogram
	processingDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("chatflux"),
	}

	var err error

	m.messagesProcessed, err = m.meter.Int64Counter(
		"chat.consumer.messages.processed.total",
		metric.WithDescription("Total records processed by the consumer pipeline"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesProcessed counter: %w", err)
	}

	m.decodeFailures, err = m.meter.Int64Counter(
		"chat.consumer.decode.failures.total",
		metric.WithDescription("Total records dropped because the payload did not decode"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decodeFailures counter: %w", err)
	}

	m.persistFailures, err = m.meter.Int64Counter(
		"chat.consumer.persist.failures.total",
		metric.WithDescription("Total records abandoned because persistence failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistFailures counter: %w", err)
	}

	m.messagesDelivered, err = m.meter.Int64Counter(
		"chat.fanout.messages.delivered.total",
		metric.WithDescription("Total copies enqueued into recipient mailboxes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesDelivered counter: %w", err)
	}

	m.messagesDropped, err = m.meter.Int64Counter(
		"chat.fanout.messages.dropped.total",
		metric.WithDescription("Total copies not delivered: recipient offline or mailbox full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesDropped counter: %w", err)
	}

	m.consumerLag, err = m.meter.Int64Gauge(
		"chat.consumer.lag",
		metric.WithDescription("Total backlog across partitions: watermark minus committed offset"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumerLag gauge: %w", err)
	}

	m.connectionsCurrent, err = m.meter.Int64UpDownCounter(
		"chat.connections.current",
		metric.WithDescription("Current number of live websocket connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connectionsCurrent gauge: %w", err)
	}

	m.decodeDuration, err = m.meter.Float64Histogram(
		"chat.consumer.decode.duration.ms",
		metric.WithDescription("Record decode duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decodeDuration histogram: %w", err)
	}

	m.persistDuration, err = m.meter.Float64Histogram(
		"chat.consumer.persist.duration.ms",
		metric.WithDescription("Message persistence duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistDuration histogram: %w", err)
	}

	m.fanoutDuration, err = m.meter.Float64Histogram(
		"chat.consumer.fanout.duration.ms",
		metric.WithDescription("Recipient resolution and fanout duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fanoutDuration histogram: %w", err)
	}

	m.processingDuration, err = m.meter.Float64Histogram(
		"chat.consumer.processing.duration.ms",
		metric.WithDescription("End-to-end record processing duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processingDuration histogram: %w", err)
	}

	return m, nil
}

// RecordProcessed records one fully processed record with its end-to-end
// duration.
func (m *Metrics) RecordProcessed(durationMs float64) {
	ctx := context.Background()
	m.messagesProcessed.Add(ctx, 1)
	m.processingDuration.Record(ctx, durationMs)
}

// RecordDecode records the decode stage duration.
func (m *Metrics) RecordDecode(durationMs float64) {
	m.decodeDuration.Record(context.Background(), durationMs)
}

// RecordDecodeFailure records a dropped undecodable record.
func (m *Metrics) RecordDecodeFailure() {
	m.decodeFailures.Add(context.Background(), 1)
}

// RecordPersist records the persistence stage duration.
func (m *Metrics) RecordPersist(durationMs float64) {
	m.persistDuration.Record(context.Background(), durationMs)
}

// RecordPersistFailure records a record abandoned at the persistence stage.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Add(context.Background(), 1)
}

// RecordFanout records the fanout stage duration and its delivery outcome
// counts.
func (m *Metrics) RecordFanout(durationMs float64, delivered, dropped int64) {
	ctx := context.Background()
	m.fanoutDuration.Record(ctx, durationMs)
	if delivered > 0 {
		m.messagesDelivered.Add(ctx, delivered)
	}
	if dropped > 0 {
		m.messagesDropped.Add(ctx, dropped)
	}
}

// RecordConsumerLag records the total consumer backlog.
func (m *Metrics) RecordConsumerLag(lag int64) {
	m.consumerLag.Record(context.Background(), lag)
}

// RecordConnect records a new live connection.
func (m *Metrics) RecordConnect() {
	m.connectionsCurrent.Add(context.Background(), 1)
}

// RecordDisconnect records a closed connection.
func (m *Metrics) RecordDisconnect() {
	m.connectionsCurrent.Add(context.Background(), -1)
}

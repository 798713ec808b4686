// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/absmach/chatflux/server/otel"
)

// LagMonitor periodically computes the consumer group's backlog on the chat
// topic: per partition the high watermark minus the committed offset, summed
// across partitions. Purely observational; it never throttles the pipeline.
type LagMonitor struct {
	client   *kafka.Client
	topic    string
	groupID  string
	interval time.Duration
	metrics  *otel.Metrics
	logger   *slog.Logger
}

// NewLagMonitor creates a lag monitor for the topic and consumer group.
// metrics may be nil, in which case the computed lag is only logged.
func NewLagMonitor(brokers []string, topic, groupID string, interval time.Duration, metrics *otel.Metrics, logger *slog.Logger) *LagMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &LagMonitor{
		client: &kafka.Client{
			Addr:    kafka.TCP(brokers...),
			Timeout: 5 * time.Second,
		},
		topic:    topic,
		groupID:  groupID,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run measures lag on a fixed interval until ctx is cancelled. A failed
// measurement cycle is logged and skipped, never fatal.
func (l *LagMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lag, err := l.totalLag(ctx)
			if err != nil {
				l.logger.Warn("lag_fetch_failed",
					slog.String("topic", l.topic),
					slog.String("error", err.Error()))
				continue
			}

			if l.metrics != nil {
				l.metrics.RecordConsumerLag(lag)
			}
			l.logger.Debug("consumer_lag_measured",
				slog.String("topic", l.topic),
				slog.Int64("lag", lag))
		}
	}
}

// totalLag fetches partition metadata, high watermarks and the group's
// committed offsets, and sums the per-partition lag. Partitions the group has
// not committed on yet are skipped.
func (l *LagMonitor) totalLag(ctx context.Context) (int64, error) {
	meta, err := l.client.Metadata(ctx, &kafka.MetadataRequest{
		Topics: []string{l.topic},
	})
	if err != nil {
		return 0, fmt.Errorf("fetch metadata: %w", err)
	}

	var partitions []int
	for _, t := range meta.Topics {
		if t.Name != l.topic {
			continue
		}
		if t.Error != nil {
			return 0, fmt.Errorf("topic metadata: %w", t.Error)
		}
		for _, p := range t.Partitions {
			partitions = append(partitions, p.ID)
		}
	}
	if len(partitions) == 0 {
		return 0, fmt.Errorf("topic %s has no partitions", l.topic)
	}

	offsetReqs := make([]kafka.OffsetRequest, 0, len(partitions))
	for _, id := range partitions {
		offsetReqs = append(offsetReqs, kafka.LastOffsetOf(id))
	}
	listResp, err := l.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{l.topic: offsetReqs},
	})
	if err != nil {
		return 0, fmt.Errorf("fetch watermarks: %w", err)
	}

	watermarks := make(map[int]int64, len(partitions))
	for _, po := range listResp.Topics[l.topic] {
		if po.Error != nil {
			return 0, fmt.Errorf("watermark for partition %d: %w", po.Partition, po.Error)
		}
		watermarks[po.Partition] = po.LastOffset
	}

	fetchResp, err := l.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: l.groupID,
		Topics:  map[string][]int{l.topic: partitions},
	})
	if err != nil {
		return 0, fmt.Errorf("fetch committed offsets: %w", err)
	}

	committed := make(map[int]int64, len(partitions))
	for _, p := range fetchResp.Topics[l.topic] {
		if p.Error != nil {
			return 0, fmt.Errorf("committed offset for partition %d: %w", p.Partition, p.Error)
		}
		committed[p.Partition] = p.CommittedOffset
	}

	return sumLag(watermarks, committed), nil
}

// sumLag computes total backlog from per-partition watermarks and committed
// offsets. A negative committed offset means the group has no position on
// that partition and it contributes nothing.
func sumLag(watermarks, committed map[int]int64) int64 {
	var total int64
	for partition, watermark := range watermarks {
		offset, ok := committed[partition]
		if !ok || offset < 0 {
			continue
		}
		if lag := watermark - offset; lag > 0 {
			total += lag
		}
	}
	return total
}

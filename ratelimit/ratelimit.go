// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit limits how fast individual senders may publish messages.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SenderLimiter manages a token bucket per sender. Applied at the publish
// endpoint, ahead of the broker, so a noisy sender is rejected before their
// messages consume pipeline capacity.
type SenderLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*senderEntry
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	stopCh   chan struct{}
}

type senderEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSenderLimiter creates a per-sender rate limiter. r is messages per
// second, burst is the burst allowance per sender.
func NewSenderLimiter(r float64, burst int, cleanupInterval time.Duration) *SenderLimiter {
	l := &SenderLimiter{
		limiters: make(map[uuid.UUID]*senderEntry),
		rate:     rate.Limit(r),
		burst:    burst,
		cleanup:  cleanupInterval,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a publish from the given sender is allowed.
func (l *SenderLimiter) Allow(senderID uuid.UUID) bool {
	l.mu.Lock()
	entry, exists := l.limiters[senderID]
	if !exists {
		entry = &senderEntry{
			limiter:  rate.NewLimiter(l.rate, l.burst),
			lastSeen: time.Now(),
		}
		l.limiters[senderID] = entry
	} else {
		entry.lastSeen = time.Now()
	}
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// cleanupLoop periodically removes stale entries.
func (l *SenderLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *SenderLimiter) removeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-l.cleanup * 2)
	for senderID, entry := range l.limiters {
		if entry.lastSeen.Before(threshold) {
			delete(l.limiters, senderID)
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *SenderLimiter) Stop() {
	close(l.stopCh)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream owns the persistent streaming connection to each server.
package stream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/relay-tui/internal/model"
)

// Resyncer fills the gap left by an outage: for every channel, posts newer
// than the channel's last rendered post are fetched and fed through the
// hydration path. The client core implements this.
type Resyncer interface {
	Resync(serverID string)
}

// =============================================================================
// SUPERVISOR
// =============================================================================

// Supervisor runs the reconnection loop over all registered workers. Every
// interval it retries each Disconnected worker; a successful reconnect
// triggers a resync. Attempts are unbounded in count but rate-limited per
// worker, so a persistently unreachable server costs one dial per interval.
type Supervisor struct {
	mu       sync.Mutex
	workers  map[string]*Worker
	limiters map[string]*rate.Limiter
	interval time.Duration
	resyncer Resyncer
}

// NewSupervisor creates a supervisor with the given reconnect interval.
func NewSupervisor(interval time.Duration, resyncer Resyncer) *Supervisor {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &Supervisor{
		workers:  make(map[string]*Worker),
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		resyncer: resyncer,
	}
}

// Add registers a worker under its server id.
func (s *Supervisor) Add(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.serverID] = w
	s.limiters[w.serverID] = rate.NewLimiter(rate.Every(s.interval), 1)
}

// Remove drops a worker (server disconnect/logout).
func (s *Supervisor) Remove(serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, serverID)
	delete(s.limiters, serverID)
}

// Worker returns the registered worker for a server id, or nil.
func (s *Supervisor) Worker(serverID string) *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers[serverID]
}

// Run drives the reconnection loop until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep makes one pass over the workers, reconnecting the Disconnected
// ones. Exposed separately so tests can drive the loop deterministically.
func (s *Supervisor) Sweep(ctx context.Context) {
	s.mu.Lock()
	var pending []*Worker
	for id, w := range s.workers {
		if w.State() != model.StateDisconnected {
			continue
		}
		if !s.limiters[id].Allow() {
			continue
		}
		pending = append(pending, w)
	}
	s.mu.Unlock()

	for _, w := range pending {
		if err := w.Connect(ctx); err != nil {
			continue // next sweep retries
		}
		if s.resyncer != nil {
			s.resyncer.Resync(w.serverID)
		}
	}
}

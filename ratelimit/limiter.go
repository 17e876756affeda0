// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit bounds request rates per client identity.
//
// Limiter is a fixed-window counter. Each client has a (count, windowStart)
// pair; a request more than the reset interval after windowStart opens a new
// window. A client can therefore get up to twice the limit through across a
// window boundary.
//
// Client state is never pruned, so memory grows with the number of distinct
// client ids seen.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 20

	// DefaultInterval is the window length.
	DefaultInterval = 60 * time.Second
)

type window struct {
	count int
	start time.Time
}

// Limiter decides whether a client has exhausted its request budget.
// Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	now      func() time.Time
	clients  map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter) error

// WithLimit sets the number of requests allowed per window.
func WithLimit(limit int) Option {
	return func(l *Limiter) error {
		if limit < 1 {
			return errors.New("limit must be positive")
		}
		l.limit = limit
		return nil
	}
}

// WithInterval sets the window length.
func WithInterval(interval time.Duration) Option {
	return func(l *Limiter) error {
		if interval <= 0 {
			return errors.New("interval must be positive")
		}
		l.interval = interval
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) error {
		if now == nil {
			now = time.Now
		}
		l.now = now
		return nil
	}
}

// New creates a Limiter with DefaultLimit and DefaultInterval unless
// overridden.
func New(opts ...Option) (*Limiter, error) {
	l := &Limiter{
		limit:    DefaultLimit,
		interval: DefaultInterval,
		now:      time.Now,
		clients:  make(map[string]*window),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// IsLimited records a request from clientID and reports whether it must be
// denied. Denied requests do not count against the window.
func (l *Limiter) IsLimited(clientID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) > l.interval {
		l.clients[clientID] = &window{count: 1, start: now}
		return false
	}
	if w.count >= l.limit {
		return true
	}
	w.count++
	return false
}

// Limit returns the number of requests allowed per window.
func (l *Limiter) Limit() int { return l.limit }

// Interval returns the window length.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Clients returns the number of client ids tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

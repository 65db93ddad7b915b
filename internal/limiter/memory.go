package limiter

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process fixed-window limiter for single-node deployments.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	now     func() time.Time
	windows map[string]*bucket
	swept   time.Time
}

type bucket struct {
	start time.Time
	hits  int
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, limit int) *Memory {
	return &Memory{window: window, limit: limit, now: time.Now, windows: make(map[string]*bucket)}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	b, ok := m.windows[key]
	if !ok || !now.Before(b.start.Add(m.window)) {
		b = &bucket{start: now}
		m.windows[key] = b
	}
	b.hits++
	if b.hits > m.limit {
		return false, b.start.Add(m.window).Sub(now), nil
	}
	return true, 0, nil
}

// sweep drops expired windows, at most once per window length.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.swept) < m.window {
		return
	}
	m.swept = now
	for k, b := range m.windows {
		if !now.Before(b.start.Add(m.window)) {
			delete(m.windows, k)
		}
	}
}

package ratelimit

import (
	"sync"
	"time"
)

// bucket implements a token bucket for one actor.
type bucket struct {
	capacity   int           // maximum tokens
	available  int           // current tokens
	window     time.Duration // refill window
	lastRefill time.Time
}

// refill adds tokens based on elapsed time since last refill.
func (b *bucket) refill(now time.Time) {
	if b.window == 0 || b.capacity == 0 {
		return
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}

	// rate = capacity / window
	tokens := int(float64(b.capacity) * float64(elapsed) / float64(b.window))
	if tokens > 0 {
		b.available += tokens
		if b.available > b.capacity {
			b.available = b.capacity
		}
		b.lastRefill = now
	}
}

// MemoryLimiter provides local per-actor rate limiting using token
// buckets. Buckets are created lazily from the default budget the first
// time an actor is seen. It is safe for concurrent use.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	closed  bool

	defaultCapacity int
	defaultWindow   time.Duration

	nowFunc func() time.Time // for testing
}

// NewMemoryLimiter creates an in-memory limiter. Every actor starts with
// capacity attempts per window unless overridden with SetLimit. A zero
// capacity or window disables limiting: Allow always returns true.
func NewMemoryLimiter(capacity int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:         make(map[string]*bucket),
		defaultCapacity: capacity,
		defaultWindow:   window,
		nowFunc:         time.Now,
	}
}

// SetLimit configures a dedicated budget for an actor.
func (m *MemoryLimiter) SetLimit(actorID string, capacity int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if capacity <= 0 || window <= 0 {
		delete(m.buckets, actorID)
		return
	}

	if b, exists := m.buckets[actorID]; exists {
		b.capacity = capacity
		b.window = window
		if b.available > capacity {
			b.available = capacity
		}
		return
	}
	m.buckets[actorID] = &bucket{
		capacity:   capacity,
		available:  capacity, // start full
		window:     window,
		lastRefill: m.nowFunc(),
	}
}

// Allow reports whether the actor may make another attempt now.
func (m *MemoryLimiter) Allow(actorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	b, exists := m.buckets[actorID]
	if !exists {
		if m.defaultCapacity <= 0 || m.defaultWindow <= 0 {
			return true
		}
		b = &bucket{
			capacity:   m.defaultCapacity,
			available:  m.defaultCapacity,
			window:     m.defaultWindow,
			lastRefill: m.nowFunc(),
		}
		m.buckets[actorID] = b
	}

	b.refill(m.nowFunc())

	if b.available > 0 {
		b.available--
		return true
	}
	return false
}

// Usage returns the actor's current budget.
func (m *MemoryLimiter) Usage(actorID string) *Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.buckets[actorID]
	if !exists {
		if m.defaultCapacity <= 0 || m.defaultWindow <= 0 {
			return nil
		}
		return &Usage{
			ActorID:   actorID,
			Available: m.defaultCapacity,
			Total:     m.defaultCapacity,
			Window:    m.defaultWindow,
		}
	}

	b.refill(m.nowFunc())

	return &Usage{
		ActorID:   actorID,
		Available: b.available,
		Total:     b.capacity,
		Window:    b.window,
	}
}

// Close shuts down the limiter.
func (m *MemoryLimiter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

// Ensure MemoryLimiter implements Limiter.
var _ Limiter = (*MemoryLimiter)(nil)

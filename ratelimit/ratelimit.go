package ratelimit

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed          = errors.New("limiter closed")
	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrInvalidWindow   = errors.New("invalid window")
)

// Limiter throttles per-actor access to a contended endpoint. Claim
// polling is the only hot path: an empty queue invites tight retry
// loops, so each actor gets a budget of attempts per window.
type Limiter interface {
	// Allow reports whether the actor may make another attempt now.
	// A false return means the actor's budget for the current window
	// is spent.
	Allow(actorID string) bool

	// SetLimit configures a dedicated budget for an actor, overriding
	// the default. capacity is attempts per window.
	SetLimit(actorID string, capacity int, window time.Duration)

	// Usage returns the actor's current budget, or nil if the actor
	// has never been seen and no default is configured.
	Usage(actorID string) *Usage

	// Close shuts down the limiter.
	Close() error
}

// Usage describes an actor's current rate limit budget.
type Usage struct {
	// ActorID the budget belongs to.
	ActorID string

	// Available is the remaining attempts in the current window.
	Available int

	// Total is the budget per window.
	Total int

	// Window is the refill period.
	Window time.Duration
}

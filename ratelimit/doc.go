// Package ratelimit throttles per-actor access to the claim endpoint.
//
// When the pending queue runs dry, annotation clients tend to poll in
// tight loops. The limiter gives every actor a budget of claim attempts
// per window; exhausted budgets surface as HTTP 429 at the API layer.
//
// The MemoryLimiter uses token buckets with time-based refill:
//
//	limiter := ratelimit.NewMemoryLimiter(30, time.Minute) // 30 attempts per minute
//
//	if !limiter.Allow(actor.ID) {
//	    // tell the client to back off
//	}
//
// Buckets are created lazily from the default budget on an actor's first
// attempt. SetLimit overrides the default for a specific actor, which is
// useful for automation accounts that legitimately poll faster.
package ratelimit

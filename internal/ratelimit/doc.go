// Package ratelimit implements the per-adapter token buckets.
//
// Refill is lazy: whole tokens are credited on each call in proportion to
// the time elapsed since the last credit, saturating at capacity. Callers
// either poll TryConsume or block in Wait, which sleeps for the computed
// WaitTime in a bounded loop.
package ratelimit

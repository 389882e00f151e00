/*
SPDX-License-Identifier: Apache-2.0
*/

// Package retry implements the per-event retry schedule. A policy is a
// stateless formula evaluated against the ordinal of the current attempt;
// it carries no mutable state of its own, so a single Policy value can be
// shared or copied freely, and different event sources can attach
// different schedules to different events.
package retry

import (
	"math"
	"time"
)

// Policy produces a (possibly infinite) sequence of delays for a failing
// event. NextDelay is given the ordinal of the attempt that just failed
// (0 for the first failure) and returns the delay to wait before the next
// attempt, together with false once attempts are exhausted.
type Policy interface {
	NextDelay(attempt int) (delay time.Duration, ok bool)
}

// GenericPolicy is the default bounded-exponential policy:
//
//	delay(n) = min(Initial * Multiplier^n, MaxInterval)
//
// capped at MaxAttempts tries (0 means unlimited). A policy with
// MaxAttempts == 1 disables retry entirely: NextDelay(0) already reports
// exhaustion.
//
// This does not reuse k8s.io/client-go/util/workqueue's
// ItemExponentialFailureRateLimiter, even though internal/backoff wraps
// exactly that type for the keyed worker pool's crash-loop throttling:
// that limiter hardcodes base-2 doubling, and retry policies need a
// configurable multiplier per event.
type GenericPolicy struct {
	// Initial is the delay before the first retry. Must be positive.
	Initial time.Duration
	// Multiplier scales the delay on each subsequent attempt. Must be >= 1;
	// a value of 1 yields a constant delay.
	Multiplier float64
	// MaxInterval caps the computed delay. Zero means uncapped.
	MaxInterval time.Duration
	// MaxAttempts caps the number of attempts. Zero means unlimited.
	MaxAttempts int
}

var _ Policy = GenericPolicy{}

// NextDelay implements Policy.
func (p GenericPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt+1 >= p.MaxAttempts {
		return 0, false
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.Initial) * math.Pow(multiplier, float64(attempt))
	if p.MaxInterval > 0 && delay > float64(p.MaxInterval) {
		delay = float64(p.MaxInterval)
	}
	return time.Duration(delay), true
}

// NoRetry is a policy that never retries: MaxAttempts of 1 disables retry.
var NoRetry = GenericPolicy{Initial: 0, Multiplier: 1, MaxAttempts: 1}

/*
SPDX-License-Identifier: Apache-2.0
*/

// Package backoff implements a per-key exponential backoff tracker.
// pkg/queue uses it as a safety-net throttle for a uid whose handler
// keeps failing regardless of the event's own retry.Policy, keyed on
// (uid, reason) so a uid that moves from one failure reason to another
// does not inherit the old reason's backoff state.
package backoff

import (
	"sync"
	"time"

	"k8s.io/client-go/util/workqueue"
)

// failureKey identifies one (uid, reason) failure bucket inside the
// underlying rate limiter. Keeping it a concrete, comparable struct (rather
// than a loosely-typed pair) means a stale bucket from a uid's prior failure
// reason can never collide with its current one.
type failureKey struct {
	uid    string
	reason string
}

// Backoff tracks exponential backoff per (uid, reason) pair.
type Backoff struct {
	lock    sync.Mutex
	reasons map[string]string
	limiter workqueue.RateLimiter
}

// New creates a Backoff whose computed delay never exceeds maxDelay.
func New(maxDelay time.Duration) *Backoff {
	return &Backoff{
		reasons: make(map[string]string),
		limiter: workqueue.NewItemExponentialFailureRateLimiter(20*time.Millisecond, maxDelay),
	}
}

// Next returns the next backoff delay for uid failing for reason,
// resetting any accumulated backoff if reason changed since the last call.
func (b *Backoff) Next(uid string, reason string) time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()

	if prev, ok := b.reasons[uid]; ok && prev != reason {
		b.limiter.Forget(failureKey{uid: uid, reason: prev})
	}

	b.reasons[uid] = reason
	return b.limiter.When(failureKey{uid: uid, reason: reason})
}

// Forget clears all backoff state for uid, e.g. once it starts succeeding.
func (b *Backoff) Forget(uid string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if reason, ok := b.reasons[uid]; ok {
		b.limiter.Forget(failureKey{uid: uid, reason: reason})
	}

	delete(b.reasons, uid)
}

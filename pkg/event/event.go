/*
SPDX-License-Identifier: Apache-2.0
*/

// Package event defines the unit the dispatcher consumes: an immutable
// triple of action, resource snapshot, and retry policy.
package event

import (
	"github.com/opskit/dispatch-runtime/pkg/resource"
	"github.com/opskit/dispatch-runtime/pkg/retry"
)

// Action identifies what the watch protocol reported for this event.
type Action string

const (
	// Added means the resource was newly observed.
	Added Action = "Added"
	// Modified means an already-observed resource changed.
	Modified Action = "Modified"
	// Deleted means the resource is gone from the API server by the time
	// the event was emitted. The dispatcher treats this as informational;
	// see pkg/dispatch's OnDeleted hook.
	Deleted Action = "Deleted"
	// Error means the watch source itself failed to produce this event
	// (e.g. a watch stream error). The dispatcher does not invoke the
	// callback for these; only the retry policy governs redelivery.
	Error Action = "Error"
)

// Event is the immutable unit dispatched to the event dispatcher. The
// dispatcher treats Added and Modified identically.
type Event[T resource.Object] struct {
	Action   Action
	Resource T
	Retry    retry.Policy
}

// New constructs an Event. A nil Retry means the event carries no
// redelivery schedule; callers that want retry should supply one.
func New[T resource.Object](action Action, res T, policy retry.Policy) Event[T] {
	return Event[T]{Action: action, Resource: res, Retry: policy}
}

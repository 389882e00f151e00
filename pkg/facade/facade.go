/*
SPDX-License-Identifier: Apache-2.0
*/

// Package facade declares the thin abstraction over the cluster API that
// the dispatcher requires for the two mutation shapes it performs. The
// only reason this interface exists is testability: it lets the mutation
// layer be substituted with a stub in unit tests, so it stays a
// two-method abstraction and is never generalized into a broader client.
package facade

import (
	"context"

	"github.com/opskit/dispatch-runtime/pkg/resource"
)

// Facade is the sole mutation path the dispatcher uses; it performs no
// other writes to the cluster.
type Facade[T resource.Object] interface {
	// ReplaceWithLock performs a full replace of r, using r's
	// resourceVersion as an optimistic-concurrency precondition. On a
	// precondition failure it returns a dispatcherr.ConflictError; the
	// dispatcher treats that as retryable.
	ReplaceWithLock(ctx context.Context, r T) (T, error)
	// UpdateStatus updates only r's status subresource. Because this
	// leaves metadata.resourceVersion on the main object untouched and
	// the API server never bumps metadata.generation for a status-only
	// write, this is what keeps generation-aware deduplication correct
	// for UpdateStatus verdicts.
	UpdateStatus(ctx context.Context, r T) (T, error)
}

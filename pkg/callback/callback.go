/*
SPDX-License-Identifier: Apache-2.0
*/

// Package callback declares the two operations a reconciliation callback
// must implement. It is modeled as a plain interface, not a class
// hierarchy: there is exactly one axis of variation (what CreateOrUpdate
// and Delete do), so an interface or record-of-functions carries it
// without needing a deeper type hierarchy.
package callback

import (
	"context"

	"github.com/opskit/dispatch-runtime/pkg/resource"
	"github.com/opskit/dispatch-runtime/pkg/verdict"
)

// Callback is the operator author's reconciliation logic for one custom
// resource kind.
type Callback[T resource.Object] interface {
	// CreateOrUpdate is invoked for resources that are not being deleted,
	// after the dispatcher has ensured the finalizer is present on the
	// snapshot it passes in. ctx carries the same deadline/cancellation
	// and logger the dispatcher itself was called with.
	CreateOrUpdate(ctx context.Context, r T) (verdict.Verdict[T], error)
	// Delete is invoked only when the resource is terminating and this
	// controller's finalizer is present. Returning true means
	// finalization is complete and the dispatcher should remove the
	// finalizer and persist that; false means try again later.
	Delete(ctx context.Context, r T) (bool, error)
}

// Funcs adapts two plain functions into a Callback, the way
// http.HandlerFunc adapts a function into an http.Handler. Useful for
// callbacks that need no additional state beyond closures.
type Funcs[T resource.Object] struct {
	CreateOrUpdateFunc func(ctx context.Context, r T) (verdict.Verdict[T], error)
	DeleteFunc         func(ctx context.Context, r T) (bool, error)
}

var _ Callback[resource.Object] = Funcs[resource.Object]{}

// CreateOrUpdate implements Callback.
func (f Funcs[T]) CreateOrUpdate(ctx context.Context, r T) (verdict.Verdict[T], error) {
	return f.CreateOrUpdateFunc(ctx, r)
}

// Delete implements Callback.
func (f Funcs[T]) Delete(ctx context.Context, r T) (bool, error) {
	if f.DeleteFunc == nil {
		return true, nil
	}
	return f.DeleteFunc(ctx, r)
}

/*
SPDX-License-Identifier: Apache-2.0
*/

// Package verdict defines the tagged variant returned by the reconciliation
// callback to tell the dispatcher what, if anything, has to be persisted.
package verdict

import (
	"github.com/opskit/dispatch-runtime/pkg/resource"
)

// Kind identifies which case of Verdict is populated.
type Kind int

const (
	// KindNoUpdate means the callback determined that the cluster already
	// matches the desired state; nothing of the callback's doing needs to
	// be persisted.
	KindNoUpdate Kind = iota
	// KindUpdateResource means the resource (as returned by the callback)
	// must be persisted with an optimistic-lock replace.
	KindUpdateResource
	// KindUpdateStatus means only the resource's status subresource must
	// be persisted.
	KindUpdateStatus
	// KindUpdateResourceAndStatus means both a replace and a status update
	// must happen, replace first.
	KindUpdateResourceAndStatus
)

// Verdict is the sum type a reconciliation callback returns. It has exactly
// four shapes, constructed by the functions below; there is no other way to
// produce one. The dispatcher interprets it by switching on Kind() at the
// single dispatch site in pkg/dispatch — never by type-asserting or
// subclassing.
type Verdict[T resource.Object] struct {
	kind     Kind
	resource T
}

// NoUpdate signals that nothing from the callback needs to be persisted.
// The dispatcher may still persist a finalizer edit it made itself before
// invoking the callback.
func NoUpdate[T resource.Object]() Verdict[T] {
	return Verdict[T]{kind: KindNoUpdate}
}

// UpdateResource requests a full optimistic-lock replace of r.
func UpdateResource[T resource.Object](r T) Verdict[T] {
	return Verdict[T]{kind: KindUpdateResource, resource: r}
}

// UpdateStatus requests a status-subresource-only update of r. Using the
// status subresource means metadata.resourceVersion on the main object is
// left alone and metadata.generation is never touched by it, which matters
// for generation-aware deduplication: the API server only bumps generation
// on spec changes.
func UpdateStatus[T resource.Object](r T) Verdict[T] {
	return Verdict[T]{kind: KindUpdateStatus, resource: r}
}

// UpdateResourceAndStatus requests both, in that order: first a replace of
// r, then a status update applied to the result of that replace.
func UpdateResourceAndStatus[T resource.Object](r T) Verdict[T] {
	return Verdict[T]{kind: KindUpdateResourceAndStatus, resource: r}
}

// Kind reports which case this verdict holds.
func (v Verdict[T]) Kind() Kind {
	return v.kind
}

// Resource returns the resource carried by this verdict. It is the zero
// value of T for KindNoUpdate.
func (v Verdict[T]) Resource() T {
	return v.resource
}

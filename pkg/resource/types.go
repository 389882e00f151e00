/*
SPDX-License-Identifier: Apache-2.0
*/

// Package resource defines the constraint that custom resource types must
// satisfy to be driven by the event dispatcher.
package resource

import (
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Object is the central interface that custom resource types handled by this
// framework have to implement. It is deliberately nothing more than
// controller-runtime's client.Object: the dispatcher only ever needs
// metadata.uid, metadata.generation, metadata.resourceVersion,
// metadata.deletionTimestamp and metadata.finalizers, all of which
// client.Object (via metav1.Object) already exposes. The user callback may
// assert the concrete type to reach spec and status.
type Object interface {
	client.Object
}

// Key returns a stable string identity for a resource, suitable as a
// generation-cache key. UID is used rather than namespace/name because UID
// survives a delete-recreate cycle without colliding with the previous
// incarnation's cache entry.
func Key(obj Object) string {
	return string(obj.GetUID())
}

/*
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes per-controller counters for the dispatch
// domain: events handled, callback errors, façade operations, and
// generation-gate skips, all registered against controller-runtime's
// shared Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const prefix = "dispatch_runtime"

var (
	// EventsHandled counts events handed to Dispatcher.HandleEvent, by
	// controller and action.
	EventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_events_handled_total",
			Help: "Total number of events handled per controller and action",
		},
		[]string{"controller", "action"},
	)
	// GenerationSkipped counts events dropped by the generation gate
	// before the callback was invoked.
	GenerationSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_generation_skipped_total",
			Help: "Total number of events skipped by the generation gate per controller",
		},
		[]string{"controller"},
	)
	// CallbackErrors counts errors returned by the user callback, by
	// controller and callback operation (createOrUpdate, delete).
	CallbackErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_callback_errors_total",
			Help: "Total number of callback errors per controller and operation",
		},
		[]string{"controller", "operation"},
	)
	// FacadeOperations counts façade mutation calls, by controller and
	// operation (replaceWithLock, updateStatus).
	FacadeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_facade_operations_total",
			Help: "Total number of façade mutation calls per controller and operation",
		},
		[]string{"controller", "operation"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		EventsHandled,
		GenerationSkipped,
		CallbackErrors,
		FacadeOperations,
	)
}

/*
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatch implements the event dispatcher: the central state
// machine that consumes a stream of custom-resource events, enforces
// finalizer discipline, invokes the user reconciliation callback,
// interprets its verdict, persists resulting mutations back to the
// cluster via the façade, and handles generation-aware deduplication and
// retry bookkeeping.
//
// Dispatcher.HandleEvent is synchronous relative to its caller and spawns
// no goroutines of its own: it blocks only inside calls to the user
// callback and the façade. Serializing events per resource UID, and
// deciding how to re-deliver a failed event according to that event's
// retry.Policy, are the watch source's responsibility; see pkg/queue for
// a reference implementation of that side.
package dispatch

import (
	"context"
	"reflect"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/sap/go-generics/slices"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/opskit/dispatch-runtime/internal/events"
	"github.com/opskit/dispatch-runtime/internal/metrics"
	"github.com/opskit/dispatch-runtime/pkg/callback"
	"github.com/opskit/dispatch-runtime/pkg/controller"
	"github.com/opskit/dispatch-runtime/pkg/dispatcherr"
	"github.com/opskit/dispatch-runtime/pkg/event"
	"github.com/opskit/dispatch-runtime/pkg/facade"
	"github.com/opskit/dispatch-runtime/pkg/gencache"
	"github.com/opskit/dispatch-runtime/pkg/resource"
	"github.com/opskit/dispatch-runtime/pkg/verdict"
)

// OnDeletedFunc is an optional hook invoked for Deleted events: the
// dispatcher forwards the event to it instead of dropping it silently. By
// the time such an event arrives the object is already gone from the API
// server, so no façade call or cache update happens around it.
type OnDeletedFunc[T resource.Object] func(ctx context.Context, r T)

// Dispatcher is the event dispatcher for one controller instance, bound to
// custom resource type T.
type Dispatcher[T resource.Object] struct {
	config    controller.Config
	facade    facade.Facade[T]
	callback  callback.Callback[T]
	cache     *gencache.Cache
	recorder  *events.Recorder
	onDeleted OnDeletedFunc[T]
}

// Option customizes a Dispatcher at construction time.
type Option[T resource.Object] func(*Dispatcher[T])

// WithCache supplies a pre-existing generation cache, e.g. one shared
// across dispatcher instances in a test, instead of a fresh one.
func WithCache[T resource.Object](cache *gencache.Cache) Option[T] {
	return func(d *Dispatcher[T]) { d.cache = cache }
}

// WithEventRecorder attaches a Kubernetes event recorder; the dispatcher
// emits a Normal event on a successful outcome and a Warning event when
// the callback returns an error, deduplicated per resource UID. Façade
// errors are returned without recording an event.
func WithEventRecorder[T resource.Object](recorder record.EventRecorder) Option[T] {
	return func(d *Dispatcher[T]) { d.recorder = events.NewRecorder(recorder) }
}

// WithOnDeleted registers a hook invoked for Deleted events.
func WithOnDeleted[T resource.Object](fn OnDeletedFunc[T]) Option[T] {
	return func(d *Dispatcher[T]) { d.onDeleted = fn }
}

// New constructs a Dispatcher bound to a controller Config, a resource
// façade, and a reconciliation callback.
func New[T resource.Object](cfg controller.Config, fac facade.Facade[T], cb callback.Callback[T], opts ...Option[T]) *Dispatcher[T] {
	d := &Dispatcher[T]{
		config:   cfg,
		facade:   fac,
		callback: cb,
		cache:    gencache.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleEvent is the dispatcher's single public operation. It never
// returns a retriable-vs-fatal distinction structurally: callers that
// need to tell them apart should errors.As into
// dispatcherr.ProgrammingError, the only fatal kind, and treat any other
// error as retriable, which is exactly what pkg/queue does when deciding
// whether to re-deliver.
func (d *Dispatcher[T]) HandleEvent(ctx context.Context, ev event.Event[T]) error {
	logger := log.FromContext(ctx).WithValues("controller", d.config.CRDName, "action", string(ev.Action))

	r := ev.Resource
	if isNilResource(r) {
		return dispatcherr.NewProgrammingError("dispatch: event carries a nil resource")
	}
	uid := resource.Key(r)
	if uid == "" {
		return dispatcherr.NewProgrammingError("dispatch: resource has no uid")
	}

	metrics.EventsHandled.WithLabelValues(d.config.CRDName, string(ev.Action)).Inc()

	switch ev.Action {
	case event.Error:
		// No callback invocation; redelivery is entirely the watch
		// source's concern, driven by this event's retry.Policy.
		return nil
	case event.Deleted:
		if d.onDeleted != nil {
			d.onDeleted(ctx, r)
		}
		return nil
	}

	generation := r.GetGeneration()

	if !r.GetDeletionTimestamp().IsZero() {
		return d.handleDeletion(ctx, logger, r, uid, generation)
	}

	// The generation gate only applies to the reconcile path, never to
	// deletion: the delete path must be invoked whenever deletionTimestamp
	// is set and our finalizer is present, full stop. Setting
	// deletionTimestamp does not bump metadata.generation, so gating on
	// generation before checking deletionTimestamp would permanently block
	// termination of any resource that happened to reach deletion at the
	// same generation it was last successfully reconciled at — the same
	// gotcha real controller-runtime operators hit when
	// predicate.GenerationChangedPredicate is applied without a companion
	// predicate for metadata-only changes.
	if d.config.GenerationAware && !d.cache.ShouldProcess(uid, generation) {
		metrics.GenerationSkipped.WithLabelValues(d.config.CRDName).Inc()
		logger.V(1).Info("skipping event, generation already processed", "generation", generation)
		return nil
	}

	return d.handleReconcile(ctx, logger, r, uid, generation)
}

func (d *Dispatcher[T]) handleDeletion(ctx context.Context, logger logr.Logger, r T, uid string, generation int64) error {
	if !slices.Contains(r.GetFinalizers(), d.config.FinalizerName) {
		// Deletion in progress, not our concern: some other controller
		// (or none) owns the terminal step.
		logger.V(1).Info("deletion in progress without our finalizer; ignoring")
		return nil
	}

	done, err := d.callback.Delete(ctx, r)
	if err != nil {
		metrics.CallbackErrors.WithLabelValues(d.config.CRDName, "delete").Inc()
		d.recordWarning(r, "DeleteFailed", err.Error())
		return errors.Wrap(err, "callback delete failed")
	}

	if !done {
		logger.V(1).Info("finalization not yet complete")
		d.cache.MarkProcessed(uid, generation)
		return nil
	}

	updated, ok := r.DeepCopyObject().(T)
	if !ok {
		return dispatcherr.NewProgrammingError("dispatch: resource does not implement DeepCopyObject to T")
	}
	updated.SetFinalizers(slices.Remove(updated.GetFinalizers(), d.config.FinalizerName))
	if _, err := d.facade.ReplaceWithLock(ctx, updated); err != nil {
		metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "replaceWithLock").Inc()
		return errors.Wrap(err, "error removing finalizer")
	}
	metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "replaceWithLock").Inc()

	d.cache.MarkProcessed(uid, generation)
	d.recordNormal(r, "Finalized", "finalizer removed after successful deletion")
	logger.V(1).Info("finalizer removed; deletion complete")
	return nil
}

func (d *Dispatcher[T]) handleReconcile(ctx context.Context, logger logr.Logger, r T, uid string, generation int64) error {
	addedFinalizer := false
	if !slices.Contains(r.GetFinalizers(), d.config.FinalizerName) {
		withFinalizer, ok := r.DeepCopyObject().(T)
		if !ok {
			return dispatcherr.NewProgrammingError("dispatch: resource does not implement DeepCopyObject to T")
		}
		withFinalizer.SetFinalizers(append(append([]string{}, withFinalizer.GetFinalizers()...), d.config.FinalizerName))
		r = withFinalizer
		addedFinalizer = true
	}

	v, err := d.callback.CreateOrUpdate(ctx, r)
	if err != nil {
		metrics.CallbackErrors.WithLabelValues(d.config.CRDName, "createOrUpdate").Inc()
		d.recordWarning(r, "ReconcileFailed", err.Error())
		return errors.Wrap(err, "callback createOrUpdate failed")
	}

	if err := d.persistVerdict(ctx, r, v, addedFinalizer); err != nil {
		return err
	}

	d.cache.MarkProcessed(uid, generation)
	d.recordNormal(r, "Reconciled", "resource successfully reconciled")
	logger.V(1).Info("reconcile complete")
	return nil
}

// persistVerdict interprets the callback's verdict and persists whatever
// mutation it implies back to the cluster.
func (d *Dispatcher[T]) persistVerdict(ctx context.Context, original T, v verdict.Verdict[T], addedFinalizer bool) error {
	switch v.Kind() {
	case verdict.KindUpdateResource:
		r := v.Resource()
		if isNilResource(r) {
			return dispatcherr.NewProgrammingError("dispatch: UpdateResource verdict carries a nil resource")
		}
		_, err := d.facade.ReplaceWithLock(ctx, r)
		metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "replaceWithLock").Inc()
		return errors.Wrap(err, "error persisting updated resource")

	case verdict.KindUpdateStatus:
		r := v.Resource()
		if isNilResource(r) {
			return dispatcherr.NewProgrammingError("dispatch: UpdateStatus verdict carries a nil resource")
		}
		_, err := d.facade.UpdateStatus(ctx, r)
		metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "updateStatus").Inc()
		return errors.Wrap(err, "error persisting updated status")

	case verdict.KindUpdateResourceAndStatus:
		r := v.Resource()
		if isNilResource(r) {
			return dispatcherr.NewProgrammingError("dispatch: UpdateResourceAndStatus verdict carries a nil resource")
		}
		replaced, err := d.facade.ReplaceWithLock(ctx, r)
		metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "replaceWithLock").Inc()
		if err != nil {
			return errors.Wrap(err, "error persisting updated resource")
		}
		_, err = d.facade.UpdateStatus(ctx, replaced)
		metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "updateStatus").Inc()
		return errors.Wrap(err, "error persisting updated status")

	case verdict.KindNoUpdate:
		if !addedFinalizer {
			return nil
		}
		_, err := d.facade.ReplaceWithLock(ctx, original)
		metrics.FacadeOperations.WithLabelValues(d.config.CRDName, "replaceWithLock").Inc()
		return errors.Wrap(err, "error persisting finalizer edit")

	default:
		return dispatcherr.NewProgrammingError("dispatch: verdict carries an unrecognized kind")
	}
}

func (d *Dispatcher[T]) recordNormal(r T, reason, message string) {
	if d.recorder == nil {
		return
	}
	d.recorder.Event(r, corev1.EventTypeNormal, reason, message)
}

func (d *Dispatcher[T]) recordWarning(r T, reason, message string) {
	if d.recorder == nil {
		return
	}
	d.recorder.Event(r, corev1.EventTypeWarning, reason, message)
}

// isNilResource reports whether r is a nil pointer/interface held as T.
// T is constrained to resource.Object (an interface), so the concrete
// type substituted for T is almost always a pointer to a CRD struct; a
// direct `r == nil` comparison is not valid for an unconstrained type
// parameter, hence the reflection-based check.
func isNilResource[T resource.Object](r T) bool {
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

/*
SPDX-License-Identifier: Apache-2.0
*/

// Package queue implements a reference event source: a bounded pool of
// workers draining a client-go rate-limiting queue keyed by resource UID,
// so that events for one resource are always delivered in order while
// distinct resources are processed concurrently. A dispatcher built with
// pkg/dispatch expects exactly this delivery discipline but does not
// enforce it itself; WorkerPool is how a watch-based event source
// provides it.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/client-go/util/workqueue"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/opskit/dispatch-runtime/internal/backoff"
	"github.com/opskit/dispatch-runtime/pkg/dispatcherr"
	"github.com/opskit/dispatch-runtime/pkg/event"
	"github.com/opskit/dispatch-runtime/pkg/resource"
)

// Handler processes a single event; *dispatch.Dispatcher[T].HandleEvent
// satisfies this signature.
type Handler[T resource.Object] func(ctx context.Context, ev event.Event[T]) error

// WorkerPool serializes events per resource UID: events queued for the
// same UID are handed to handlers strictly in arrival order, one at a
// time, while events for different UIDs may run concurrently across up to
// Workers goroutines.
type WorkerPool[T resource.Object] struct {
	handler Handler[T]
	workers int
	backoff *backoff.Backoff

	queue workqueue.TypedRateLimitingInterface[string]

	mutex   sync.Mutex
	pending map[string][]event.Event[T]
}

// New creates a WorkerPool that calls handler for each queued event, using
// workers concurrent goroutines once Run is called. maxBackoff bounds the
// crash-loop throttle applied to a UID whose handler keeps failing with a
// retriable error.
func New[T resource.Object](handler Handler[T], workers int, maxBackoff time.Duration) *WorkerPool[T] {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool[T]{
		handler: handler,
		workers: workers,
		backoff: backoff.New(maxBackoff),
		queue: workqueue.NewTypedRateLimitingQueue[string](
			workqueue.DefaultTypedControllerRateLimiter[string](),
		),
		pending: make(map[string][]event.Event[T]),
	}
}

// Add enqueues ev for delivery. If another event for the same UID is
// already queued or in flight, ev is appended behind it rather than
// triggering a second concurrent delivery for that UID.
func (p *WorkerPool[T]) Add(ev event.Event[T]) {
	uid := resource.Key(ev.Resource)

	p.mutex.Lock()
	queued := len(p.pending[uid]) > 0
	p.pending[uid] = append(p.pending[uid], ev)
	p.mutex.Unlock()

	if !queued {
		p.queue.Add(uid)
	}
}

// Run starts the worker goroutines and blocks until ctx is canceled, then
// shuts the queue down and waits for in-flight handlers to return.
func (p *WorkerPool[T]) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}

	<-ctx.Done()
	p.queue.ShutDown()
	wg.Wait()
}

func (p *WorkerPool[T]) worker(ctx context.Context) {
	logger := log.FromContext(ctx)
	for {
		uid, shutdown := p.queue.Get()
		if shutdown {
			return
		}
		p.process(ctx, logger, uid)
	}
}

func (p *WorkerPool[T]) process(ctx context.Context, logger logr.Logger, uid string) {
	defer p.queue.Done(uid)

	p.mutex.Lock()
	events := p.pending[uid]
	if len(events) == 0 {
		p.mutex.Unlock()
		return
	}
	ev := events[0]
	remaining := events[1:]
	if len(remaining) > 0 {
		p.pending[uid] = remaining
	} else {
		delete(p.pending, uid)
	}
	p.mutex.Unlock()

	err := p.handler(ctx, ev)

	switch {
	case err == nil:
		p.queue.Forget(uid)
		p.backoff.Forget(uid)
		p.reenqueueIfNeeded(uid)
	case isProgrammingError(err):
		// Never retried: log and drop so one malformed event does not
		// wedge the whole UID's queue.
		logger.Error(err, "dropping event after programming error", "uid", uid)
		p.queue.Forget(uid)
		p.backoff.Forget(uid)
		p.reenqueueIfNeeded(uid)
	default:
		// When a retry is actually scheduled, scheduleRetry puts ev back at
		// the front of the pending queue and re-arms the UID's next Get via
		// AddAfter without calling reenqueueIfNeeded: any other events
		// already pending for this UID must wait behind the retry to
		// preserve delivery order. When the policy disallows further
		// retries, scheduleRetry drops ev and calls reenqueueIfNeeded itself
		// so a later pending event for the UID is not stranded.
		p.scheduleRetry(uid, ev, err)
	}
}

// reenqueueIfNeeded makes sure a UID with more pending events gets another
// turn even if the current event's outcome would otherwise have removed it
// from the queue.
func (p *WorkerPool[T]) reenqueueIfNeeded(uid string) {
	p.mutex.Lock()
	more := len(p.pending[uid]) > 0
	p.mutex.Unlock()
	if more {
		p.queue.Add(uid)
	}
}

func (p *WorkerPool[T]) scheduleRetry(uid string, ev event.Event[T], err error) {
	policy := ev.Retry
	if policy == nil {
		p.queue.Forget(uid)
		p.reenqueueIfNeeded(uid)
		return
	}
	delay, ok := policy.NextDelay(p.queue.NumRequeues(uid))
	if !ok {
		p.queue.Forget(uid)
		p.reenqueueIfNeeded(uid)
		return
	}
	var retriable dispatcherr.RetriableError
	if errors.As(err, &retriable) && retriable.RetryAfter() != nil {
		delay = *retriable.RetryAfter()
	}
	if floor := p.backoff.Next(uid, err.Error()); floor > delay {
		delay = floor
	}

	p.mutex.Lock()
	p.pending[uid] = append([]event.Event[T]{ev}, p.pending[uid]...)
	p.mutex.Unlock()

	p.queue.AddAfter(uid, delay)
}

func isProgrammingError(err error) bool {
	var programmingErr dispatcherr.ProgrammingError
	return errors.As(err, &programmingErr)
}

/*
SPDX-License-Identifier: Apache-2.0
*/

package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	fixtures "github.com/opskit/dispatch-runtime/internal/testing"
	"github.com/opskit/dispatch-runtime/pkg/dispatcherr"
	"github.com/opskit/dispatch-runtime/pkg/event"
	"github.com/opskit/dispatch-runtime/pkg/queue"
	"github.com/opskit/dispatch-runtime/pkg/retry"
)

var _ = Describe("testing: workerpool.go", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("delivers events for the same uid strictly in arrival order", func() {
		var mutex sync.Mutex
		var order []int32

		widget := fixtures.NewWidget("demo")
		handler := func(ctx context.Context, ev event.Event[*fixtures.Widget]) error {
			mutex.Lock()
			order = append(order, ev.Resource.Spec.Replicas)
			mutex.Unlock()
			return nil
		}

		pool := queue.New[*fixtures.Widget](handler, 4, time.Second)
		go pool.Run(ctx)

		for i := int32(1); i <= 5; i++ {
			w := widget.DeepCopy()
			w.Spec.Replicas = i
			pool.Add(event.New(event.Added, w, retry.NoRetry))
		}

		Eventually(func() []int32 {
			mutex.Lock()
			defer mutex.Unlock()
			return append([]int32{}, order...)
		}).Should(Equal([]int32{1, 2, 3, 4, 5}))
	})

	It("processes distinct uids concurrently rather than serializing them", func() {
		const widgetCount = 6
		var processed atomic.Int32
		release := make(chan struct{})

		handler := func(ctx context.Context, ev event.Event[*fixtures.Widget]) error {
			processed.Add(1)
			<-release
			return nil
		}

		pool := queue.New[*fixtures.Widget](handler, widgetCount, time.Second)
		go pool.Run(ctx)

		for i := 0; i < widgetCount; i++ {
			pool.Add(event.New(event.Added, fixtures.NewWidget("demo"), retry.NoRetry))
		}

		Eventually(func() int32 { return processed.Load() }).Should(Equal(int32(widgetCount)))
		close(release)
	})

	It("retries a retriable error and eventually succeeds", func() {
		var attempts atomic.Int32
		handler := func(ctx context.Context, ev event.Event[*fixtures.Widget]) error {
			if attempts.Add(1) < 3 {
				return dispatcherr.NewTransportError(errors.New("transient"))
			}
			return nil
		}

		pool := queue.New[*fixtures.Widget](handler, 2, time.Second)
		go pool.Run(ctx)

		w := fixtures.NewWidget("demo")
		pool.Add(event.New(event.Added, w, retry.GenericPolicy{
			Initial:     10 * time.Millisecond,
			Multiplier:  1,
			MaxAttempts: 5,
		}))

		Eventually(func() int32 { return attempts.Load() }, 2*time.Second).Should(Equal(int32(3)))
	})

	It("drops an event after a programming error instead of retrying", func() {
		var attempts atomic.Int32
		handler := func(ctx context.Context, ev event.Event[*fixtures.Widget]) error {
			attempts.Add(1)
			return dispatcherr.NewProgrammingError("malformed event")
		}

		pool := queue.New[*fixtures.Widget](handler, 1, time.Second)
		go pool.Run(ctx)

		w := fixtures.NewWidget("demo")
		pool.Add(event.New(event.Added, w, retry.GenericPolicy{
			Initial:     10 * time.Millisecond,
			Multiplier:  1,
			MaxAttempts: 5,
		}))

		Consistently(func() int32 { return attempts.Load() }, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(int32(1)))
	})

	It("does not retry an event carrying a nil retry policy", func() {
		var attempts atomic.Int32
		handler := func(ctx context.Context, ev event.Event[*fixtures.Widget]) error {
			attempts.Add(1)
			return dispatcherr.NewTransportError(errors.New("fails forever"))
		}

		pool := queue.New[*fixtures.Widget](handler, 1, time.Second)
		go pool.Run(ctx)

		w := fixtures.NewWidget("demo")
		pool.Add(event.New[*fixtures.Widget](event.Added, w, nil))

		Consistently(func() int32 { return attempts.Load() }, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(int32(1)))
	})

	It("keeps later events for the same uid waiting behind a scheduled retry", func() {
		var mutex sync.Mutex
		var seen []int32
		var failedOnce bool

		widget := fixtures.NewWidget("demo")
		handler := func(ctx context.Context, ev event.Event[*fixtures.Widget]) error {
			mutex.Lock()
			first := !failedOnce
			failedOnce = true
			mutex.Unlock()

			if first {
				return dispatcherr.NewTransportError(errors.New("transient"))
			}
			mutex.Lock()
			seen = append(seen, ev.Resource.Spec.Replicas)
			mutex.Unlock()
			return nil
		}

		pool := queue.New[*fixtures.Widget](handler, 1, time.Second)
		go pool.Run(ctx)

		policy := retry.GenericPolicy{Initial: 20 * time.Millisecond, Multiplier: 1, MaxAttempts: 5}
		for i := int32(1); i <= 2; i++ {
			w := widget.DeepCopy()
			w.Spec.Replicas = i
			pool.Add(event.New(event.Added, w, policy))
		}

		Eventually(func() []int32 {
			mutex.Lock()
			defer mutex.Unlock()
			return append([]int32{}, seen...)
		}, 2*time.Second).Should(Equal([]int32{1, 2}))
	})
})

/*
SPDX-License-Identifier: Apache-2.0
*/

package dispatch_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/record"

	fixtures "github.com/opskit/dispatch-runtime/internal/testing"
	"github.com/opskit/dispatch-runtime/pkg/controller"
	"github.com/opskit/dispatch-runtime/pkg/dispatch"
	"github.com/opskit/dispatch-runtime/pkg/dispatcherr"
	"github.com/opskit/dispatch-runtime/pkg/event"
	"github.com/opskit/dispatch-runtime/pkg/retry"
	"github.com/opskit/dispatch-runtime/pkg/verdict"
)

var _ = Describe("testing: dispatch.go", func() {
	var (
		facade   *fixtures.FakeFacade
		cb       *fixtures.SpyCallback
		recorder *record.FakeRecorder
		d        *dispatch.Dispatcher[*fixtures.Widget]
		widget   *fixtures.Widget
	)

	BeforeEach(func() {
		facade = fixtures.NewFakeFacade()
		cb = fixtures.NewSpyCallback()
		recorder = &record.FakeRecorder{Events: make(chan string, 16)}
		cfg := controller.New("Widget")
		d = dispatch.New[*fixtures.Widget](cfg, facade, cb, dispatch.WithEventRecorder[*fixtures.Widget](recorder))
		widget = fixtures.NewWidget("demo")
		facade.Seed(widget)
	})

	addedEvent := func(w *fixtures.Widget) event.Event[*fixtures.Widget] {
		return event.New(event.Added, w, retry.NoRetry)
	}

	Describe("a newly observed resource without a finalizer", func() {
		It("adds the finalizer, invokes the callback, and persists the edit", func() {
			err := d.HandleEvent(context.Background(), addedEvent(widget))
			Expect(err).NotTo(HaveOccurred())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(1))

			stored, ok := facade.Get(string(widget.UID))
			Expect(ok).To(BeTrue())
			Expect(stored.Finalizers).To(ContainElement("Widget"))
		})

		It("passes the finalizer-bearing snapshot to the callback", func() {
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(cb.CreateOrUpdateCalls[0].Finalizers).To(ContainElement("Widget"))
		})

		It("records a Normal event on success", func() {
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Eventually(recorder.Events).Should(Receive(ContainSubstring("Reconciled")))
		})
	})

	Describe("generation-aware deduplication", func() {
		It("skips a second event at the same generation", func() {
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(1))

			stored, _ := facade.Get(string(widget.UID))
			Expect(d.HandleEvent(context.Background(), addedEvent(stored))).To(Succeed())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(1))
		})

		It("reprocesses once the generation advances", func() {
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())

			stored, _ := facade.Get(string(widget.UID))
			stored.Generation = 2
			Expect(d.HandleEvent(context.Background(), addedEvent(stored))).To(Succeed())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(2))
		})

		It("can be disabled via controller.WithGenerationAware(false)", func() {
			cfg := controller.New("Widget", controller.WithGenerationAware(false))
			d := dispatch.New[*fixtures.Widget](cfg, facade, cb)

			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			stored, _ := facade.Get(string(widget.UID))
			Expect(d.HandleEvent(context.Background(), addedEvent(stored))).To(Succeed())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(2))
		})
	})

	Describe("deletion", func() {
		BeforeEach(func() {
			now := metav1.Now()
			widget.DeletionTimestamp = &now
			widget.Finalizers = []string{"Widget"}
			facade.Seed(widget)
		})

		It("invokes Delete and removes the finalizer once finalization completes", func() {
			cb.DeleteResult = true
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(cb.DeleteCallCount()).To(Equal(1))

			stored, ok := facade.Get(string(widget.UID))
			Expect(ok).To(BeTrue())
			Expect(stored.Finalizers).NotTo(ContainElement("Widget"))
		})

		It("leaves the finalizer in place when finalization is not yet complete", func() {
			cb.DeleteResult = false
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())

			stored, ok := facade.Get(string(widget.UID))
			Expect(ok).To(BeTrue())
			Expect(stored.Finalizers).To(ContainElement("Widget"))
		})

		It("ignores deletion when our finalizer is absent", func() {
			widget.Finalizers = nil
			facade.Seed(widget)
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(cb.DeleteCallCount()).To(Equal(0))
		})

		It("is not subject to the generation gate", func() {
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(cb.DeleteCallCount()).To(Equal(2))
		})
	})

	Describe("verdict persistence", func() {
		It("persists an UpdateResource verdict via ReplaceWithLock", func() {
			desired := widget.DeepCopy()
			desired.Spec.Replicas = 3
			cb.CreateOrUpdateResult = verdict.UpdateResource(desired)

			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			stored, _ := facade.Get(string(widget.UID))
			Expect(stored.Spec.Replicas).To(Equal(int32(3)))
		})

		It("persists an UpdateStatus verdict via UpdateStatus", func() {
			desired := widget.DeepCopy()
			desired.Status.Phase = "Ready"
			cb.CreateOrUpdateResult = verdict.UpdateStatus(desired)

			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			stored, _ := facade.Get(string(widget.UID))
			Expect(stored.Status.Phase).To(Equal("Ready"))
		})

		It("persists both halves of an UpdateResourceAndStatus verdict, replace first", func() {
			desired := widget.DeepCopy()
			desired.Spec.Replicas = 7
			desired.Status.Phase = "Ready"
			cb.CreateOrUpdateResult = verdict.UpdateResourceAndStatus(desired)

			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			stored, _ := facade.Get(string(widget.UID))
			Expect(stored.Spec.Replicas).To(Equal(int32(7)))
			Expect(stored.Status.Phase).To(Equal("Ready"))
		})

		It("skips the facade write for NoUpdate once the finalizer is already present", func() {
			widget.Finalizers = []string{"Widget"}
			facade.Seed(widget)
			before, _ := facade.Get(string(widget.UID))
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			after, _ := facade.Get(string(widget.UID))
			Expect(after.ResourceVersion).To(Equal(before.ResourceVersion))
		})
	})

	Describe("error handling", func() {
		It("wraps a callback error and records a Warning event", func() {
			cb.CreateOrUpdateErr = errors.New("boom")
			err := d.HandleEvent(context.Background(), addedEvent(widget))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("boom"))
			Eventually(recorder.Events).Should(Receive(ContainSubstring("ReconcileFailed")))
		})

		It("rejects a nil resource as a programming error", func() {
			err := d.HandleEvent(context.Background(), event.New[*fixtures.Widget](event.Added, nil, retry.NoRetry))
			Expect(err).To(HaveOccurred())
			Expect(err).To(BeAssignableToTypeOf(dispatcherr.ProgrammingError{}))
		})

		It("rejects a resource with no uid as a programming error", func() {
			noUID := fixtures.NewWidget("no-uid")
			noUID.UID = ""
			err := d.HandleEvent(context.Background(), addedEvent(noUID))
			Expect(err).To(HaveOccurred())
			Expect(err).To(BeAssignableToTypeOf(dispatcherr.ProgrammingError{}))
		})

		It("does not mark the generation processed when the callback fails", func() {
			cb.CreateOrUpdateErr = errors.New("boom")
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(HaveOccurred())

			cb.CreateOrUpdateErr = nil
			Expect(d.HandleEvent(context.Background(), addedEvent(widget))).To(Succeed())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(2))
		})
	})

	Describe("Error and Deleted actions", func() {
		It("is a no-op for Error events", func() {
			err := d.HandleEvent(context.Background(), event.New(event.Error, widget, retry.NoRetry))
			Expect(err).NotTo(HaveOccurred())
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(0))
		})

		It("invokes the onDeleted hook for Deleted events without touching the facade", func() {
			var seen *fixtures.Widget
			d := dispatch.New[*fixtures.Widget](controller.New("Widget"), facade, cb,
				dispatch.WithOnDeleted(func(ctx context.Context, w *fixtures.Widget) { seen = w }))

			err := d.HandleEvent(context.Background(), event.New(event.Deleted, widget, retry.NoRetry))
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal(widget))
			Expect(cb.CreateOrUpdateCallCount()).To(Equal(0))
		})
	})

	Describe("optimistic-lock conflicts", func() {
		It("surfaces the facade's conflict error to the caller", func() {
			facade.ConflictOnReplace[string(widget.UID)] = true
			err := d.HandleEvent(context.Background(), addedEvent(widget))
			Expect(err).To(HaveOccurred())
			var conflict dispatcherr.ConflictError
			Expect(errors.As(err, &conflict)).To(BeTrue())
		})
	})
})

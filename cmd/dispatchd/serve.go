/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/opskit/dispatch-runtime/internal/testing"
	"github.com/opskit/dispatch-runtime/pkg/controller"
	"github.com/opskit/dispatch-runtime/pkg/dispatch"
	"github.com/opskit/dispatch-runtime/pkg/event"
	"github.com/opskit/dispatch-runtime/pkg/queue"
	"github.com/opskit/dispatch-runtime/pkg/retry"
	"github.com/opskit/dispatch-runtime/pkg/verdict"
)

const serveUsage = `Run a self-contained demonstration of the dispatcher and worker pool.

This wires an in-memory facade and a sample reconciliation callback to a
WorkerPool, generates a stream of synthetic widget events, and serves
Prometheus metrics at the given address, so the behavior of the dispatch
runtime can be observed without a live API server.`

type serveOptions struct {
	metricsAddr     string
	workers         int
	finalizerName   string
	generationAware bool
}

func newServeCmd() *cobra.Command {
	options := &serveOptions{}

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the reference worker-pool demo",
		Long:         serveUsage,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), options)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&options.metricsAddr, "metrics-bind-address", ":8080", "address the Prometheus metrics endpoint binds to")
	flags.IntVar(&options.workers, "workers", 4, "number of concurrent worker goroutines")
	flags.StringVar(&options.finalizerName, "finalizer-name", "widgets.dispatch.example.com", "finalizer added to managed widgets")
	flags.BoolVar(&options.generationAware, "generation-aware", true, "skip reconcile events whose generation was already processed")

	zapOptions := zap.Options{Development: true}
	zapOptions.BindFlags(flags)
	cmd.PreRun = func(c *cobra.Command, args []string) {
		log.SetLogger(zap.New(zap.UseFlagOptions(&zapOptions)))
	}

	return cmd
}

func runServe(ctx context.Context, options *serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: options.metricsAddr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "address", options.metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "metrics server failed")
		}
	}()
	defer server.Close()

	facade := testing.NewFakeFacade()
	recorder := &record.FakeRecorder{Events: make(chan string, 1024)}
	cfg := controller.New("Widget",
		controller.WithFinalizerName(options.finalizerName),
		controller.WithGenerationAware(options.generationAware),
	)

	callback := &demoCallback{logger: logger}
	d := dispatch.New[*testing.Widget](cfg, facade, callback, dispatch.WithEventRecorder[*testing.Widget](recorder))

	pool := queue.New[*testing.Widget](d.HandleEvent, options.workers, 5*time.Minute)
	go pool.Run(ctx)

	go drainEvents(ctx, recorder, logger)
	go generateEvents(ctx, facade, pool, logger)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// demoCallback reconciles a widget by recording its current generation and
// a Ready phase in status, demonstrating an UpdateStatus verdict.
type demoCallback struct {
	logger logr.Logger
}

func (c *demoCallback) CreateOrUpdate(ctx context.Context, w *testing.Widget) (verdict.Verdict[*testing.Widget], error) {
	if w.Status.ObservedGeneration == w.Generation && w.Status.Phase == "Ready" {
		return verdict.NoUpdate[*testing.Widget](), nil
	}
	updated := w.DeepCopy()
	updated.Status.ObservedGeneration = w.Generation
	updated.Status.Phase = "Ready"
	return verdict.UpdateStatus(updated), nil
}

func (c *demoCallback) Delete(ctx context.Context, w *testing.Widget) (bool, error) {
	c.logger.Info("finalizing widget", "name", w.Name)
	return true, nil
}

func drainEvents(ctx context.Context, recorder *record.FakeRecorder, logger logr.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-recorder.Events:
			logger.Info(msg)
		}
	}
}

// generateEvents feeds a handful of synthetic widgets through the pool on
// a loop, simulating the watch traffic a real event source would produce.
func generateEvents(ctx context.Context, facade *testing.FakeFacade, pool *queue.WorkerPool[*testing.Widget], logger logr.Logger) {
	widgets := make([]*testing.Widget, 0, 5)
	for i := 0; i < 5; i++ {
		w := testing.NewWidget(fmt.Sprintf("widget-%d", i))
		facade.Seed(w)
		widgets = append(widgets, w)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w := widgets[rand.Intn(len(widgets))]
			logger.Info("dispatching event", "name", w.Name, "generation", w.Generation)
			pool.Add(event.New(event.Added, w, retry.GenericPolicy{
				Initial:     time.Second,
				Multiplier:  2,
				MaxInterval: 30 * time.Second,
			}))
		}
	}
}

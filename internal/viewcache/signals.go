package viewcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/viewcache/pkg/logger"
	"github.com/charlesng35/viewcache/pkg/metrics"
)

// Op identifies the record mutation that produced a signal.
type Op string

// Record mutations that trigger invalidation.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Signal carries an invalidation event for a single record. Instance is
// optional; when present it spares the worker a database load (and for
// deletes it is the only way to compute upstream invalidations, since the
// record is already gone).
type Signal struct {
	Model    string
	PK       string
	Op       Op
	Instance any
}

// maxFollowOnDepth caps the invalidation graph walk so that cyclic
// invalidator definitions cannot loop forever.
const maxFollowOnDepth = 3

const defaultQueueSize = 256

// Worker processes invalidation signals asynchronously. Signals refresh or
// drop the affected instance payload, advance the model version (orphaning
// cached query lists) and then walk the follow-on invalidation graph.
type Worker struct {
	cache *Cache
	queue chan Signal
	log   *zap.Logger

	pending sync.WaitGroup
	runOnce sync.Once
	stop    sync.Once
}

// NewWorker builds a Worker over the supplied cache.
func NewWorker(c *Cache, queueSize int) (*Worker, error) {
	if c == nil {
		return nil, errors.New("viewcache: cache is required")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Worker{
		cache: c,
		queue: make(chan Signal, queueSize),
		log:   logger.WithModule("viewcache.worker"),
	}, nil
}

// Start launches the background processing goroutine. Calling Start more than
// once is a no-op.
func (w *Worker) Start() {
	w.runOnce.Do(func() {
		go w.run()
	})
}

// Enqueue submits a signal for asynchronous processing. It blocks when the
// queue is full; dropping signals would leave the cache permanently stale.
func (w *Worker) Enqueue(sig Signal) {
	w.pending.Add(1)
	metrics.InvalidationQueueDepth.Set(float64(len(w.queue)))
	w.queue <- sig
}

// Flush blocks until every signal enqueued so far has been processed.
func (w *Worker) Flush() {
	w.pending.Wait()
}

// Stop drains outstanding signals and terminates the worker goroutine.
func (w *Worker) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.stop.Do(func() { close(w.queue) })
	return nil
}

func (w *Worker) run() {
	for sig := range w.queue {
		metrics.InvalidationQueueDepth.Set(float64(len(w.queue)))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.process(ctx, sig)
		cancel()

		if err != nil {
			metrics.InvalidationSignals.WithLabelValues(sig.Model, "error").Inc()
			w.log.Error("invalidation signal failed",
				zap.String("model", sig.Model),
				zap.String("pk", sig.PK),
				zap.String("op", string(sig.Op)),
				zap.Error(err),
			)
		} else {
			metrics.InvalidationSignals.WithLabelValues(sig.Model, "ok").Inc()
		}

		w.pending.Done()
	}
}

// process applies one signal and walks its follow-on invalidations
// breadth-first, refreshing only entries already cached and bumping the
// version of every touched model.
func (w *Worker) process(ctx context.Context, sig Signal) error {
	var errs error

	var followOn []Invalidation

	switch sig.Op {
	case OpDelete:
		if err := w.cache.DeleteInstance(ctx, sig.Model, sig.PK); err != nil {
			errs = multierr.Append(errs, err)
		}
		if sig.Instance != nil {
			if binding, err := w.cache.registry.Binding(sig.Model); err == nil && binding.Invalidator != nil {
				for _, upstream := range binding.Invalidator(sig.Instance) {
					if upstream.Key != "" {
						if err := w.cache.store.Delete(ctx, upstream.Key); err != nil {
							errs = multierr.Append(errs, err)
						}
						continue
					}
					if upstream.Immediate {
						if err := w.cache.DeleteInstance(ctx, upstream.Model, upstream.PK); err != nil {
							errs = multierr.Append(errs, err)
						}
					}
					followOn = append(followOn, upstream)
				}
			}
		}
	default:
		invs, err := w.cache.UpdateInstance(ctx, sig.Model, sig.PK, sig.Instance, false)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		followOn = invs
	}

	if _, err := w.cache.BumpVersion(ctx, sig.Model); err != nil {
		errs = multierr.Append(errs, err)
	}

	errs = multierr.Append(errs, w.walkFollowOn(ctx, sig, followOn))
	return errs
}

func (w *Worker) walkFollowOn(ctx context.Context, origin Signal, followOn []Invalidation) error {
	var errs error

	visited := map[Spec]struct{}{{Model: origin.Model, PK: origin.PK}: {}}
	queue := followOn

	for depth := 0; depth < maxFollowOnDepth && len(queue) > 0; depth++ {
		var next []Invalidation
		for _, inv := range queue {
			spec := Spec{Model: inv.Model, PK: inv.PK}
			if _, seen := visited[spec]; seen {
				continue
			}
			visited[spec] = struct{}{}

			// Follow-on refreshes only touch entries already cached.
			further, err := w.cache.UpdateInstance(ctx, inv.Model, inv.PK, nil, true)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if _, err := w.cache.BumpVersion(ctx, inv.Model); err != nil {
				errs = multierr.Append(errs, err)
			}
			next = append(next, further...)
		}
		queue = next
	}

	if len(queue) > 0 {
		w.log.Warn("follow-on invalidation depth exceeded",
			zap.String("model", origin.Model),
			zap.String("pk", origin.PK),
			zap.Int("remaining", len(queue)),
		)
	}

	return errs
}

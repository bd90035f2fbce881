// Package worker drains the pending-extraction queue, strictly one job at a
// time: load image, call the extraction endpoint, resolve the espresso
// price, commit to the remote record store. Item-level failures never stop
// the loop; only cancellation does.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/espressomap/espressomap/constants"
	"github.com/espressomap/espressomap/internal/entity"
	"github.com/espressomap/espressomap/internal/extraction"
	"github.com/espressomap/espressomap/internal/queue"
	"github.com/espressomap/espressomap/internal/remote"
	"github.com/espressomap/espressomap/internal/vocab"
)

// ErrAlreadyRunning means another trigger context holds the loop. The
// foreground and background triggers share one store and must never drain
// it concurrently.
var ErrAlreadyRunning = errors.New("extraction worker already running")

// Worker drives the sequential extraction loop.
type Worker struct {
	store   queue.Store
	client  extraction.Client
	records remote.RecordStore

	logger  *slog.Logger
	delay   time.Duration
	retry   RetryPolicy
	metrics *Metrics

	processing atomic.Bool
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterJobDelay sets the throttle between jobs.
func WithInterJobDelay(d time.Duration) Option {
	return func(w *Worker) {
		if d >= 0 {
			w.delay = d
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(w *Worker) {
		if p != nil {
			w.retry = p
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func New(store queue.Store, client extraction.Client, records remote.RecordStore, opts ...Option) *Worker {
	w := &Worker{
		store:   store,
		client:  client,
		records: records,
		logger:  slog.Default(),
		delay:   500 * time.Millisecond,
		retry:   NoRetry{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ProcessPendingExtractions drains the queue until it is empty or ctx is
// cancelled. Cancellation is cooperative and checked at the top of each
// iteration; a job in flight runs to completion first. Returns
// ErrAlreadyRunning when another invocation holds the loop.
func (w *Worker) ProcessPendingExtractions(ctx context.Context) error {
	if !w.processing.CompareAndSwap(false, true) {
		w.logger.Warn("worker.loop.double_start_blocked")
		return ErrAlreadyRunning
	}
	defer w.processing.Store(false)

	w.logger.Info("worker.loop.start")
	jobs := 0
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker.loop.cancelled", "jobs_done", jobs)
			return err
		}

		w.resetDueRetries(ctx)

		job, err := w.store.GetNextPending(ctx)
		if err != nil {
			w.logger.Error("worker.loop.next_failed", "err", err)
			return err
		}
		if job == nil {
			break
		}

		w.process(ctx, job)
		jobs++

		// throttle between jobs regardless of outcome
		if w.delay > 0 {
			timer := time.NewTimer(w.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}
	w.logger.Info("worker.loop.done", "jobs_done", jobs)
	return nil
}

// IsProcessing reports whether the loop currently holds the guard.
func (w *Worker) IsProcessing() bool {
	return w.processing.Load()
}

// process runs one job through the five-step sequence. Any failure marks
// the job failed and returns; nothing escapes to the loop.
func (w *Worker) process(ctx context.Context, job *entity.PendingExtraction) {
	start := time.Now()
	log := w.logger.With("job_id", job.ID, "cafe", job.Cafe.Name)
	log.Info("worker.process.start", "retry_count", job.RetryCount)

	if err := w.store.MarkAsExtracting(ctx, job.ID); err != nil {
		log.Error("worker.process.mark_extracting_failed", "err", err)
		return
	}

	image, err := w.store.LoadImage(ctx, job)
	if err != nil {
		w.fail(ctx, job, "load_image", "could not load image")
		return
	}

	drinks, err := w.client.Extract(ctx, image)
	if err != nil {
		w.fail(ctx, job, "extract", err.Error())
		return
	}

	// the pipeline's only commit criterion: an espresso price was resolved
	if vocab.FindEspressoPrice(drinks) == nil {
		w.fail(ctx, job, "no_espresso", "no espresso price found")
		return
	}

	if err := w.store.UpdateWithResults(ctx, job.ID, drinks); err != nil {
		log.Error("worker.process.update_results_failed", "err", err)
		return
	}

	rec := entity.PriceRecord{
		Cafe:       job.Cafe,
		Drinks:     drinks,
		ImageBytes: image,
		RecordedAt: time.Now().UTC(),
	}
	if err := w.records.AddPriceForLocation(ctx, rec); err != nil {
		w.fail(ctx, job, "commit", err.Error())
		return
	}

	if err := w.store.MarkAsCompleted(ctx, job.ID); err != nil {
		log.Error("worker.process.mark_completed_failed", "err", err)
		return
	}
	elapsed := time.Since(start)
	w.metrics.jobCompleted(elapsed.Seconds())
	log.Info("worker.process.ok", "drinks", len(drinks), "elapsed_ms", elapsed.Milliseconds())
}

func (w *Worker) fail(ctx context.Context, job *entity.PendingExtraction, stage, message string) {
	w.metrics.jobFailed(stage)
	if err := w.store.MarkAsFailed(ctx, job.ID, message); err != nil {
		w.logger.Error("worker.process.mark_failed_failed", "job_id", job.ID, "err", err)
	}
}

// resetDueRetries applies the retry policy: failed jobs under the retry
// bound whose policy delay has elapsed go back to queued. With the default
// NoRetry policy this is a no-op.
func (w *Worker) resetDueRetries(ctx context.Context) {
	if _, ok := w.retry.NextDelay(1); !ok {
		return
	}
	jobs, err := w.store.List(ctx)
	if err != nil {
		w.logger.Error("worker.retry.list_failed", "err", err)
		return
	}
	now := time.Now()
	for i := range jobs {
		job := &jobs[i]
		if !job.Pending() || job.Status != constants.StatusFailed {
			continue
		}
		delay, ok := w.retry.NextDelay(job.RetryCount)
		if !ok {
			continue
		}
		if job.LastAttempt != nil && now.Sub(*job.LastAttempt) < delay {
			continue
		}
		if err := w.store.ResetForRetry(ctx, job.ID); err != nil {
			w.logger.Error("worker.retry.reset_failed", "job_id", job.ID, "err", err)
			continue
		}
		w.logger.Info("worker.retry.requeued", "job_id", job.ID, "retry_count", job.RetryCount)
	}
}

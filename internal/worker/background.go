package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// BackgroundRunner adapts a host-provided deferred execution opportunity to
// the worker loop. The host hands us a slice of time with an expiration
// deadline; we drain as much backlog as fits and always re-register for a
// future opportunity before returning.
type BackgroundRunner struct {
	worker     *Worker
	reschedule func()
	logger     *slog.Logger
}

func NewBackgroundRunner(w *Worker, reschedule func(), logger *slog.Logger) *BackgroundRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackgroundRunner{worker: w, reschedule: reschedule, logger: logger}
}

// Run processes the backlog until done or the deadline expires. Expiration
// rides the same cooperative cancellation as a manual stop: checked between
// jobs, never mid-job. Re-registration happens whether or not the backlog
// was finished.
func (r *BackgroundRunner) Run(ctx context.Context, deadline time.Time) error {
	defer func() {
		if r.reschedule != nil {
			r.reschedule()
		}
	}()

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	err := r.worker.ProcessPendingExtractions(ctx)
	switch {
	case err == nil:
		r.logger.Info("worker.background.drained", "elapsed_ms", time.Since(start).Milliseconds())
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.Info("worker.background.expired", "elapsed_ms", time.Since(start).Milliseconds())
		return nil
	case errors.Is(err, ErrAlreadyRunning):
		// foreground trigger owns the loop; nothing to do
		r.logger.Info("worker.background.skipped_already_running")
		return nil
	default:
		return err
	}
}

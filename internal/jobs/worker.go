package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher is a best-effort outcome broadcast; a false return means the
// update was not delivered and must never fail the worker's own cycle.
type Publisher interface {
	Publish(ctx context.Context, payload any) bool
}

type WorkerOptions struct {
	Store        Store
	Optimizer    Optimizer
	Publisher    Publisher
	Logger       *zap.Logger
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Worker drains the queued jobs on a fixed interval. Multiple worker
// processes may run the same loop; the conditional queued->running claim is
// the only coordination between them.
type Worker struct {
	store        Store
	optimizer    Optimizer
	publisher    Publisher
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

func NewWorker(opts WorkerOptions) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		store:        opts.Store,
		optimizer:    opts.Optimizer,
		publisher:    opts.Publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
	}
}

// Run polls until ctx is cancelled. The ticker is the only blocking point;
// no locks are held across poll cycles.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error("poll cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single poll cycle. Side-effect failures are converted
// into state transitions and never escape the cycle.
func (w *Worker) RunOnce(ctx context.Context) error {
	queued, err := w.store.ListQueued(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, job := range queued {
		w.processJob(ctx, job)
	}
	return nil
}

func (w *Worker) processJob(ctx context.Context, job Job) {
	claimed, err := w.store.Transition(ctx, job.ID, StatusQueued, StatusRunning, TransitionPatch{})
	if err != nil {
		w.logger.Error("claim failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !claimed {
		// Another worker instance won the race; nothing to do.
		return
	}

	attempts := job.Attempts + 1
	if sideEffectErr := w.applySideEffect(ctx, job); sideEffectErr != nil {
		w.recordFailure(ctx, job, attempts, sideEffectErr)
		return
	}

	applied, err := w.store.Transition(ctx, job.ID, StatusRunning, StatusDone, TransitionPatch{
		Attempts: intPtr(attempts),
	})
	if err != nil {
		w.logger.Error("mark done failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !applied {
		w.logger.Warn("job status changed externally, skipping done mark", zap.String("job_id", job.ID))
		return
	}
	w.logger.Info("job done",
		zap.String("job_id", job.ID),
		zap.String("action", string(job.Action)),
		zap.String("platform", job.Platform),
		zap.Int("attempts", attempts),
	)
	w.broadcast(ctx, job, StatusDone, attempts)
}

func (w *Worker) applySideEffect(ctx context.Context, job Job) error {
	// Rejects flip the suggestion only; there is nothing to write to the
	// optimizer, so the job completes without an external call.
	if job.Action == ActionReject {
		return nil
	}
	return w.optimizer.ApplyPriority(ctx, job.Platform, job.NewPriority)
}

func (w *Worker) recordFailure(ctx context.Context, job Job, attempts int, cause error) {
	next := StatusQueued
	if attempts >= w.maxAttempts {
		next = StatusError
	}
	applied, err := w.store.Transition(ctx, job.ID, StatusRunning, next, TransitionPatch{
		Attempts:  intPtr(attempts),
		LastError: strPtr(cause.Error()),
	})
	if err != nil {
		w.logger.Error("record failure transition failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !applied {
		w.logger.Warn("job status changed externally, dropping failure record", zap.String("job_id", job.ID))
		return
	}
	w.logger.Warn("side effect failed",
		zap.String("job_id", job.ID),
		zap.Int("attempts", attempts),
		zap.String("next_status", string(next)),
		zap.Error(cause),
	)
	if next == StatusError {
		w.broadcast(ctx, job, StatusError, attempts)
	}
}

func (w *Worker) broadcast(ctx context.Context, job Job, status Status, attempts int) {
	if w.publisher == nil {
		return
	}
	delivered := w.publisher.Publish(ctx, map[string]any{
		"jobId":        job.ID,
		"suggestionId": job.SuggestionID,
		"action":       string(job.Action),
		"platform":     job.Platform,
		"status":       string(status),
		"attempts":     attempts,
	})
	if !delivered {
		w.logger.Debug("outcome broadcast not delivered", zap.String("job_id", job.ID))
	}
}

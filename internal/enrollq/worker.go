// Package enrollq runs the background worker that applies deferred profile
// updates. Matches enqueue a job instead of writing the gallery inline; this
// worker drains the queue so the predict path stays read-only.
package enrollq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"keyprint/internal/gallery"
	"keyprint/internal/keystroke"
	"keyprint/internal/storage"
)

// JobStore abstracts the job queue operations.
// Implemented by storage.Store.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Updater applies a matched sample to its profile.
// Implemented by gallery.Manager.
type Updater interface {
	ApplyUpdate(profileID string, confidence float64, events []keystroke.KeyEvent) error
}

// Worker processes profile_update jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	updater Updater
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, updater Updater, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		updater: updater,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single profile_update job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{gallery.JobTypeProfileUpdate})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(job *storage.Job) error {
	var payload gallery.UpdatePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	if err := w.updater.ApplyUpdate(payload.ProfileID, payload.Confidence, payload.Events); err != nil {
		return fmt.Errorf("applying update to %s: %w", payload.ProfileID, err)
	}
	return nil
}

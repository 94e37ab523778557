package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/storage"
)

// JobRemember is the job type that turns free text into long-term memories.
const JobRemember = "remember"

// RememberPayload is the JSON body of a remember job.
type RememberPayload struct {
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// JobEnqueuer adds jobs to the queue.
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Rememberer stores the facts found in a piece of text.
type Rememberer interface {
	Remember(ctx context.Context, text, source string, category memory.Category) ([]storage.Memory, error)
}

// Enqueue queues text for extraction and returns the job id.
func Enqueue(ctx context.Context, q JobEnqueuer, p RememberPayload) (string, error) {
	if strings.TrimSpace(p.Text) == "" {
		return "", errors.New("remember: text is empty")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshalling payload: %w", err)
	}
	id := uuid.New().String()
	if err := q.EnqueueJob(ctx, storage.Job{ID: id, Type: JobRemember, PayloadJSON: string(body)}); err != nil {
		return "", fmt.Errorf("enqueueing remember job: %w", err)
	}
	return id, nil
}

// Worker turns queued remember jobs into long-term memories.
type Worker struct {
	store    JobStore
	memories Rememberer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker polls store every pollInterval (500ms when <= 0).
func NewWorker(store JobStore, memories Rememberer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		memories: memories,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run drains the queue, sleeps for the poll interval when it is empty and
// repeats until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	idle := time.NewTimer(0)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}

		for ctx.Err() == nil {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("remember worker", "error", err)
			}
			if !processed || err != nil {
				break
			}
		}
		idle.Reset(w.poll)
	}
}

// RunOnce claims and processes one remember job. It reports whether a job
// was claimed; a job that fails is handed back to the queue for retry.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobRemember})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload RememberPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	var cat memory.Category
	if payload.Category != "" {
		c, ok := memory.ParseCategory(payload.Category)
		if !ok {
			return fmt.Errorf("unknown category %q", payload.Category)
		}
		cat = c
	}

	saved, err := w.memories.Remember(ctx, payload.Text, payload.Source, cat)
	if err != nil {
		return fmt.Errorf("remembering: %w", err)
	}
	w.logger.Debug("remember job done", "job_id", job.ID, "facts", len(saved))
	return nil
}

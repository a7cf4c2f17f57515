// Package jobs provides a persistent background job queue backed by the
// metadata store. A single worker polls for pending jobs and runs them
// oldest-first, so at most one job executes at a time.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/indexer"
	"github.com/docsift/docsift/internal/store"
)

const (
	idlePoll     = 1 * time.Second
	errorBackoff = 5 * time.Second
)

// Runner owns the polling worker.
type Runner struct {
	meta    store.MetadataStore
	idx     *indexer.Service
	poll    time.Duration
	backoff time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewRunner creates a runner with the default poll interval.
func NewRunner(meta store.MetadataStore, idx *indexer.Service) *Runner {
	return &Runner{meta: meta, idx: idx, poll: idlePoll, backoff: errorBackoff}
}

// Enqueue persists a new pending job and returns it.
func (r *Runner) Enqueue(ctx context.Context, jobType domain.JobType, payload map[string]any) (*domain.Job, error) {
	switch jobType {
	case domain.JobTypeScanSource, domain.JobTypeIndexDoc, domain.JobTypeReindexAll:
	default:
		return nil, errs.Validation("unknown job type %q", jobType)
	}

	job := &domain.Job{
		ID:      domain.NewID(),
		Type:    jobType,
		Status:  domain.JobStatusPending,
		Payload: payload,
	}
	if err := r.meta.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run(ctx)
}

// Stop signals the worker and waits for the in-flight job to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()
	<-done
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)
	slog.Info("job worker started")

	for {
		select {
		case <-r.stopCh:
			slog.Info("job worker stopped")
			return
		case <-ctx.Done():
			slog.Info("job worker stopped", slog.String("reason", ctx.Err().Error()))
			return
		default:
		}

		pending, err := r.meta.GetPendingJobs(ctx, 1)
		if err != nil {
			slog.Error("failed to poll for jobs", slog.String("error", err.Error()))
			r.sleep(ctx, r.backoff)
			continue
		}
		if len(pending) == 0 {
			r.sleep(ctx, r.poll)
			continue
		}

		r.execute(ctx, pending[0])
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.stopCh:
	case <-ctx.Done():
	}
}

// execute runs one job to completion and records the outcome.
func (r *Runner) execute(ctx context.Context, job *domain.Job) {
	job.Status = domain.JobStatusRunning
	job.Progress = 0
	if err := r.meta.UpdateJob(ctx, job); err != nil {
		slog.Error("failed to mark job running",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	slog.Info("job started", slog.String("job_id", job.ID), slog.String("type", string(job.Type)))

	err := r.dispatch(ctx, job)
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.Error = err.Error()
		slog.Error("job failed",
			slog.String("job_id", job.ID),
			slog.String("type", string(job.Type)),
			slog.String("error", err.Error()))
	} else {
		job.Status = domain.JobStatusDone
		job.Progress = 1.0
		slog.Info("job done", slog.String("job_id", job.ID), slog.String("type", string(job.Type)))
	}
	if upErr := r.meta.UpdateJob(ctx, job); upErr != nil {
		slog.Error("failed to record job outcome",
			slog.String("job_id", job.ID), slog.String("error", upErr.Error()))
	}
}

func (r *Runner) dispatch(ctx context.Context, job *domain.Job) error {
	progress := func(p float64) {
		job.Progress = p
		if err := r.meta.UpdateJob(ctx, job); err != nil {
			slog.Warn("failed to update job progress",
				slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}

	switch job.Type {
	case domain.JobTypeScanSource:
		sourceID, err := payloadString(job, "source_id")
		if err != nil {
			return err
		}
		return r.idx.ScanSource(ctx, sourceID, progress)
	case domain.JobTypeIndexDoc:
		docID, err := payloadString(job, "doc_id")
		if err != nil {
			return err
		}
		return r.idx.IndexDocument(ctx, docID)
	case domain.JobTypeReindexAll:
		return r.idx.ReindexAll(ctx, progress)
	default:
		return errs.Validation("unknown job type %q", job.Type)
	}
}

func payloadString(job *domain.Job, key string) (string, error) {
	v, ok := job.Payload[key]
	if !ok {
		return "", errs.Validation("job payload missing %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errs.Validation("job payload %q must be a non-empty string, got %T", key, v)
	}
	return s, nil
}

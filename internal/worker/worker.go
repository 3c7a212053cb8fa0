package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/queue"
)

// Runner executes one job to a terminal state. pipeline.Orchestrator
// implements it.
type Runner interface {
	Run(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error
}

// JobTracker is the slice of jobs.Tracker the worker and submitter need.
type JobTracker interface {
	Create(kind models.JobKind, opts models.JobOptions) (models.JobRecord, error)
	Get(id string) (models.JobRecord, error)
	Fail(id, reason string) error
}

const defaultPollTimeout = 5 * time.Second

type Worker struct {
	queue       queue.Queue
	runner      Runner
	tracker     JobTracker
	pollTimeout time.Duration
}

func New(q queue.Queue, runner Runner, tracker JobTracker) *Worker {
	return &Worker{
		queue:       q,
		runner:      runner,
		tracker:     tracker,
		pollTimeout: defaultPollTimeout,
	}
}

// Start runs concurrency consumers until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(ctx)
			return nil
		})
	}

	err := g.Wait()
	log.Println("[Worker] Shutting down...")
	return err
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Error dequeuing: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue // No task available, retry
		}

		w.process(ctx, task)
	}
}

// process runs one task and guarantees the job ends terminal, including
// when the runner panics or returns without recording a state.
func (w *Worker) process(ctx context.Context, task *queue.Task) {
	log.Printf("[Worker] Processing job %s (kind: %s, task: %s)", task.JobID, task.Kind, task.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Job %s panicked: %v", task.JobID, r)
			w.ensureTerminal(task.JobID, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	err := w.runner.Run(ctx, task.JobID, task.Kind, task.Options)
	if err != nil {
		log.Printf("[Worker] Job %s failed after %s: %v", task.JobID, time.Since(start).Round(time.Millisecond), err)
		w.ensureTerminal(task.JobID, err.Error())
		return
	}

	log.Printf("[Worker] Job %s finished in %s", task.JobID, time.Since(start).Round(time.Millisecond))
	w.ensureTerminal(task.JobID, "job ended without a terminal state")
}

func (w *Worker) ensureTerminal(jobID, reason string) {
	rec, err := w.tracker.Get(jobID)
	if err != nil {
		log.Printf("[Worker] Job %s: %v", jobID, err)
		return
	}
	if rec.Stage.IsTerminal() {
		return
	}
	if err := w.tracker.Fail(jobID, reason); err != nil {
		log.Printf("[Worker] Job %s: failed to record failure: %v", jobID, err)
	}
}

// ---------------------------------------------------------------------------
// Submitter
// ---------------------------------------------------------------------------

// Submitter registers a job and queues it for the worker pool.
type Submitter struct {
	tracker JobTracker
	queue   queue.Queue
}

func NewSubmitter(tracker JobTracker, q queue.Queue) *Submitter {
	return &Submitter{tracker: tracker, queue: q}
}

// Submit returns the pending record immediately. A job that cannot be queued
// is failed before returning.
func (s *Submitter) Submit(ctx context.Context, kind models.JobKind, opts models.JobOptions) (models.JobRecord, error) {
	rec, err := s.tracker.Create(kind, opts)
	if err != nil {
		return models.JobRecord{}, err
	}

	task := &queue.Task{JobID: rec.ID, Kind: kind, Options: opts}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		reason := fmt.Sprintf("failed to enqueue: %v", err)
		if failErr := s.tracker.Fail(rec.ID, reason); failErr != nil {
			log.Printf("[Worker] Job %s: failed to record enqueue failure: %v", rec.ID, failErr)
		}
		return models.JobRecord{}, fmt.Errorf("failed to queue job %s: %w", rec.ID, err)
	}

	log.Printf("[Worker] Queued job %s (kind: %s)", rec.ID, kind)
	return rec, nil
}

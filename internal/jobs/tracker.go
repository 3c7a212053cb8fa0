package jobs

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/reelsmith/internal/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobTerminal       = errors.New("job already in a terminal stage")
	ErrInvalidTransition = errors.New("invalid job stage transition")
)

// Listener observes lifecycle edges. Calls happen after the store write and
// outside any lock, so implementations should return quickly.
type Listener interface {
	JobStarted(rec models.JobRecord)
	JobFinished(rec models.JobRecord)
}

// ---------------------------------------------------------------------------
// Tracker
// Owns every stage transition of a job record:
//   pending -> processing(label) -> completed | failed
//   pending -> failed              (worker could not start the job)
// Progress never decreases and terminal records are never written again.
// ---------------------------------------------------------------------------

type Tracker struct {
	store     Store
	now       func() time.Time
	listeners []Listener
}

type Option func(*Tracker)

// WithClock replaces time.Now, used by tests to drive ETA math.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithListener(l Listener) Option {
	return func(t *Tracker) { t.listeners = append(t.listeners, l) }
}

func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create stores a new pending record with an initial ETA.
func (t *Tracker) Create(kind models.JobKind, opts models.JobOptions) (models.JobRecord, error) {
	now := t.now()
	eta := InitialEstimate(opts.DurationSec, opts.Voiceover)

	rec := models.JobRecord{
		ID:                        uuid.New().String(),
		Kind:                      kind,
		Stage:                     models.JobStagePending,
		EstimatedSecondsRemaining: &eta,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if err := t.store.Create(rec); err != nil {
		return models.JobRecord{}, fmt.Errorf("failed to create job: %w", err)
	}

	log.Printf("[Jobs] Created job %s (kind=%s, eta=%ds)", rec.ID, kind, eta)
	return rec.Clone(), nil
}

// Get returns a snapshot of the record.
func (t *Tracker) Get(id string) (models.JobRecord, error) {
	return t.store.Get(id)
}

// List returns snapshots of every record.
func (t *Tracker) List() []models.JobRecord {
	return t.store.List()
}

// Advance moves the job into processing under label and raises its progress.
// The first call on a pending job stamps StartedAt. Progress lower than the
// current value is clamped and logged.
func (t *Tracker) Advance(id, label string, percent int) error {
	started := false

	rec, err := t.store.Update(id, func(rec *models.JobRecord) error {
		if err := t.checkWritable(rec, "advance"); err != nil {
			return err
		}

		now := t.now()
		if rec.Stage == models.JobStagePending {
			rec.Stage = models.JobStageProcessing
			started = true
		}
		if rec.StartedAt == nil {
			rec.StartedAt = &now
		}

		if percent > 100 {
			percent = 100
		}
		if percent < rec.ProgressPercent {
			log.Printf("[Jobs] Job %s progress %d below current %d, clamping", id, percent, rec.ProgressPercent)
			percent = rec.ProgressPercent
		}

		rec.StageLabel = label
		rec.ProgressPercent = percent
		rec.EstimatedSecondsRemaining = EstimateRemaining(now.Sub(*rec.StartedAt), percent, rec.EstimatedSecondsRemaining)
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	if started {
		log.Printf("[Jobs] Job %s started (%s)", id, label)
		for _, l := range t.listeners {
			l.JobStarted(rec)
		}
	}
	return nil
}

// Complete finishes a processing job with its artifact.
func (t *Tracker) Complete(id string, artifact *models.ArtifactDescriptor) error {
	rec, err := t.store.Update(id, func(rec *models.JobRecord) error {
		if err := t.checkWritable(rec, "complete"); err != nil {
			return err
		}
		if rec.Stage != models.JobStageProcessing {
			return fmt.Errorf("job %s: %s -> %s: %w", id, rec.Stage, models.JobStageCompleted, ErrInvalidTransition)
		}

		now := t.now()
		zero := 0
		rec.Stage = models.JobStageCompleted
		rec.StageLabel = ""
		rec.ProgressPercent = 100
		rec.EstimatedSecondsRemaining = &zero
		rec.Result = artifact.Clone()
		rec.UpdatedAt = now
		rec.FinishedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Jobs] Job %s completed", id)
	t.notifyFinished(rec)
	return nil
}

// Fail records a terminal failure. Progress and ETA stay where they were.
func (t *Tracker) Fail(id, reason string) error {
	rec, err := t.store.Update(id, func(rec *models.JobRecord) error {
		if err := t.checkWritable(rec, "fail"); err != nil {
			return err
		}

		now := t.now()
		msg := reason
		rec.Stage = models.JobStageFailed
		rec.Error = &msg
		rec.UpdatedAt = now
		rec.FinishedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Jobs] Job %s failed: %s", id, reason)
	t.notifyFinished(rec)
	return nil
}

func (t *Tracker) checkWritable(rec *models.JobRecord, op string) error {
	if rec.Stage.IsTerminal() {
		log.Printf("[Jobs] contract violation: %s on job %s in terminal stage %s", op, rec.ID, rec.Stage)
		return fmt.Errorf("job %s: %w", rec.ID, ErrJobTerminal)
	}
	return nil
}

func (t *Tracker) notifyFinished(rec models.JobRecord) {
	for _, l := range t.listeners {
		l.JobFinished(rec)
	}
}

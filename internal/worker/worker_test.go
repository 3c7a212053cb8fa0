package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/jobs"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/queue"
)

type runnerFunc func(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error

func (f runnerFunc) Run(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error {
	return f(ctx, jobID, kind, opts)
}

func startWorker(t *testing.T, q queue.Queue, runner Runner, tracker *jobs.Tracker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(q, runner, tracker)
	w.pollTimeout = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, 2)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitTerminal(t *testing.T, tracker *jobs.Tracker, id string) models.JobRecord {
	t.Helper()
	var rec models.JobRecord
	require.Eventually(t, func() bool {
		var err error
		rec, err = tracker.Get(id)
		return err == nil && rec.Stage.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)
	return rec
}

func TestWorkerRunsQueuedJob(t *testing.T) {
	tracker := jobs.NewTracker(jobs.NewMemoryStore())
	q := queue.NewMemoryQueue(8)

	var gotPrompt string
	runner := runnerFunc(func(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error {
		gotPrompt = opts.Prompt
		if err := tracker.Advance(jobID, models.StageLabelRendering, 20); err != nil {
			return err
		}
		return tracker.Complete(jobID, &models.ArtifactDescriptor{Path: "/tmp/out.mp4", Kind: models.ArtifactKindVideo})
	})
	startWorker(t, q, runner, tracker)

	rec, err := NewSubmitter(tracker, q).Submit(context.Background(), models.JobKindTextToVideo, models.JobOptions{Prompt: "a lake", DurationSec: 5})
	require.NoError(t, err)
	assert.Equal(t, models.JobStagePending, rec.Stage)

	final := waitTerminal(t, tracker, rec.ID)
	assert.Equal(t, models.JobStageCompleted, final.Stage)
	assert.Equal(t, "a lake", gotPrompt)
}

func TestWorkerRecoversPanic(t *testing.T) {
	tracker := jobs.NewTracker(jobs.NewMemoryStore())
	q := queue.NewMemoryQueue(8)

	runner := runnerFunc(func(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error {
		_ = tracker.Advance(jobID, models.StageLabelAnalyzing, 10)
		panic("boom")
	})
	startWorker(t, q, runner, tracker)

	rec, err := NewSubmitter(tracker, q).Submit(context.Background(), models.JobKindTextToVideo, models.JobOptions{Prompt: "x", DurationSec: 5})
	require.NoError(t, err)

	final := waitTerminal(t, tracker, rec.ID)
	assert.Equal(t, models.JobStageFailed, final.Stage)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "worker panic: boom")
	assert.Equal(t, 10, final.ProgressPercent)
}

func TestWorkerFailsJobLeftPending(t *testing.T) {
	tracker := jobs.NewTracker(jobs.NewMemoryStore())
	q := queue.NewMemoryQueue(8)

	runner := runnerFunc(func(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error {
		return errors.New("provider registry empty")
	})
	startWorker(t, q, runner, tracker)

	rec, err := NewSubmitter(tracker, q).Submit(context.Background(), models.JobKindTextToVideo, models.JobOptions{Prompt: "x"})
	require.NoError(t, err)

	final := waitTerminal(t, tracker, rec.ID)
	assert.Equal(t, models.JobStageFailed, final.Stage)
	assert.Equal(t, "provider registry empty", *final.Error)
}

func TestSubmitFailsJobWhenQueueFull(t *testing.T) {
	tracker := jobs.NewTracker(jobs.NewMemoryStore())
	q := queue.NewMemoryQueue(1)
	s := NewSubmitter(tracker, q)

	_, err := s.Submit(context.Background(), models.JobKindTextToVideo, models.JobOptions{Prompt: "first"})
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), models.JobKindTextToVideo, models.JobOptions{Prompt: "second"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrQueueFull))

	var failed int
	for _, rec := range tracker.List() {
		if rec.Stage == models.JobStageFailed {
			failed++
			assert.Contains(t, *rec.Error, "failed to enqueue")
		}
	}
	assert.Equal(t, 1, failed)
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/jobs"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

const commercialPrompt = "promote our coffee product brand in a bright advertisement"

type stubPublisher struct {
	url string
	err error
}

func (p stubPublisher) Publish(ctx context.Context, jobID string, artifact *models.ArtifactDescriptor) (string, error) {
	return p.url, p.err
}

type e2eFixture struct {
	tracker      *jobs.Tracker
	orchestrator *Orchestrator
	toolkit      *fakeToolkit
}

func newE2E(t *testing.T, table SuitabilityTable, publisher Publisher, providers ...*stubProvider) *e2eFixture {
	t.Helper()
	r := NewRegistry()
	for _, p := range providers {
		register(t, r, p, 0)
	}

	toolkit := newFakeToolkit()
	selector := NewSelector(r, table)
	executor := NewExecutor(r, time.Second)
	enhancer := NewEnhancer(toolkit, NewVoiceoverStage(selector, executor, toolkit))
	tracker := jobs.NewTracker(jobs.NewMemoryStore())

	return &e2eFixture{
		tracker:      tracker,
		orchestrator: NewOrchestrator(selector, executor, enhancer, tracker, publisher, t.TempDir()),
		toolkit:      toolkit,
	}
}

func (f *e2eFixture) submit(t *testing.T, kind models.JobKind, opts models.JobOptions) (models.JobRecord, error) {
	t.Helper()
	rec, err := f.tracker.Create(kind, opts)
	require.NoError(t, err)

	runErr := f.orchestrator.Run(context.Background(), rec.ID, kind, opts)
	final, err := f.tracker.Get(rec.ID)
	require.NoError(t, err)
	return final, runErr
}

func stubTable(rank ...models.ProviderID) SuitabilityTable {
	table := DefaultSuitabilityTable()
	table[models.CapabilityVideoFromText] = map[models.ContentCategory][]models.ProviderID{
		models.CategoryGeneric: rank,
	}
	return table
}

func TestOrchestratorCommercialFallbackCompletes(t *testing.T) {
	fail := failing("stub-fail", "upstream 503")
	ok := succeeding("stub-success", 15)
	f := newE2E(t, stubTable("stub-fail", "stub-success"), nil, fail, ok)

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: commercialPrompt, DurationSec: 15})
	require.NoError(t, err)

	assert.Equal(t, models.JobStageCompleted, rec.Stage)
	assert.Equal(t, 100, rec.ProgressPercent)
	require.NotNil(t, rec.EstimatedSecondsRemaining)
	assert.Equal(t, 0, *rec.EstimatedSecondsRemaining)

	require.NotNil(t, rec.Result)
	assert.Equal(t, "render.stub-success.mp4", filepath.Base(rec.Result.Path))
	assert.Equal(t, []models.ProviderID{"stub-success"}, rec.Result.Provenance)
	assert.Equal(t, 15.0, rec.Result.DurationSec)
	require.Len(t, rec.Result.Warnings, 1)
	assert.Contains(t, rec.Result.Warnings[0], "upstream 503")
	assert.Equal(t, 1, fail.Calls())
}

func TestOrchestratorAllProvidersFail(t *testing.T) {
	f := newE2E(t, stubTable("a", "b", "c"), nil,
		failing("a", "quota exceeded"),
		failing("b", "content policy"),
		failing("c", "internal error"),
	)

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: commercialPrompt, DurationSec: 15})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllProvidersExhausted))

	assert.Equal(t, models.JobStageFailed, rec.Stage)
	assert.Equal(t, 20, rec.ProgressPercent, "progress stays at the rendering checkpoint")
	require.NotNil(t, rec.Error)
	for _, reason := range []string{"quota exceeded", "content policy", "internal error"} {
		assert.Contains(t, *rec.Error, reason)
	}
	assert.Nil(t, rec.Result)
}

func TestOrchestratorVoiceoverPanicStillCompletes(t *testing.T) {
	f := newE2E(t, stubTable("stub-success"), nil,
		succeeding("stub-success", 10),
		voiceProvider(models.ProviderElevenLabs, 10),
	)
	f.toolkit.panicMix = true

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{
		Prompt:      "a sunrise over the mountains",
		DurationSec: 10,
		Voiceover:   true,
		Narration:   "Every day starts somewhere.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobStageCompleted, rec.Stage)
	assert.Equal(t, "render.stub-success.mp4", filepath.Base(rec.Result.Path), "pre-voiceover artifact is kept")

	found := false
	for _, w := range rec.Result.Warnings {
		if strings.Contains(w, "voiceover") {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", rec.Result.Warnings)
}

func TestOrchestratorOverrideIsExclusive(t *testing.T) {
	fail := failing("stub-fail", "bad request")
	ok := succeeding("stub-success", 8)
	f := newE2E(t, stubTable("stub-success", "stub-fail"), nil, fail, ok)

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: "a lake", DurationSec: 8, Provider: "stub-fail"})
	require.Error(t, err)

	assert.Equal(t, models.JobStageFailed, rec.Stage)
	assert.Equal(t, 0, ok.Calls())
}

func TestOrchestratorImageJobUsesDescription(t *testing.T) {
	var gotPrompt string
	video := succeeding("stub-success", 6)
	inner := video.generate
	video.generate = func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
		gotPrompt = spec.Prompt
		return inner(ctx, spec)
	}

	f := newE2E(t, stubTable("stub-success"), stubPublisher{url: "https://cdn.example.com/out.mp4"},
		video,
		textProvider(models.ProviderOpenAI, models.CapabilityImageAnalysis, "A red barn in snow."),
	)

	rec, err := f.submit(t, models.JobKindImageToVideo, models.JobOptions{
		Prompt:      "slow pan",
		DurationSec: 6,
		ImageURL:    "https://example.com/barn.jpg",
	})
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "A red barn in snow.")
	require.NotNil(t, rec.Result.URL)
	assert.Equal(t, "https://cdn.example.com/out.mp4", *rec.Result.URL)
}

func TestOrchestratorPublishFailureIsWarning(t *testing.T) {
	f := newE2E(t, stubTable("stub-success"), stubPublisher{err: errors.New("bucket missing")},
		succeeding("stub-success", 6),
	)

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: "a lake", DurationSec: 6})
	require.NoError(t, err)

	assert.Equal(t, models.JobStageCompleted, rec.Stage)
	assert.Nil(t, rec.Result.URL)
	assert.Contains(t, strings.Join(rec.Result.Warnings, "\n"), "bucket missing")
}

func TestOrchestratorRejectsPromptWithNoText(t *testing.T) {
	ok := succeeding("stub-success", 6)
	f := newE2E(t, stubTable("stub-success"), nil, ok)

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: "★ ☆ @@", DurationSec: 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPrompt))

	assert.Equal(t, models.JobStageFailed, rec.Stage)
	assert.Equal(t, 0, ok.Calls())
}

func TestOrchestratorKeepsNonLatinPrompt(t *testing.T) {
	var gotPrompt string
	video := succeeding("stub-success", 6)
	inner := video.generate
	video.generate = func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
		gotPrompt = spec.Prompt
		return inner(ctx, spec)
	}
	f := newE2E(t, stubTable("stub-success"), nil, video)

	rec, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: "日本の桜が咲く風景", DurationSec: 6})
	require.NoError(t, err)
	assert.Equal(t, models.JobStageCompleted, rec.Stage)
	assert.Equal(t, "日本の桜が咲く風景", gotPrompt)
}

// captureSpecs records every video request the provider receives.
func captureSpecs(p *stubProvider) *[]services.GenerateSpec {
	var specs []services.GenerateSpec
	inner := p.generate
	p.generate = func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
		specs = append(specs, spec)
		return inner(ctx, spec)
	}
	return &specs
}

func TestOrchestratorAppliesSuggestedStyle(t *testing.T) {
	video := succeeding("stub-success", 15)
	specs := captureSpecs(video)
	f := newE2E(t, stubTable("stub-success"), nil, video)

	_, err := f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: commercialPrompt, DurationSec: 15})
	require.NoError(t, err)
	_, err = f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: commercialPrompt, DurationSec: 15, Style: "cinematic"})
	require.NoError(t, err)

	require.Len(t, *specs, 2)
	assert.Equal(t, "polished", (*specs)[0].Style, "commercial prompts default to the suggested style")
	assert.Equal(t, "cinematic", (*specs)[1].Style, "an explicit style wins")
	assert.Len(t, f.toolkit.filters, 1, "only the explicit style runs the style filter")
}

func TestOrchestratorFramesTestimonials(t *testing.T) {
	video := succeeding("stub-success", 10)
	specs := captureSpecs(video)
	f := newE2E(t, stubTable("stub-success"), nil, video)

	opts := models.JobOptions{Prompt: "a customer testimonial interview with our spokesperson", DurationSec: 10}
	_, err := f.submit(t, models.JobKindTextToVideo, opts)
	require.NoError(t, err)

	opts.Prompt = "testimonial interview, talking head of our spokesperson"
	_, err = f.submit(t, models.JobKindTextToVideo, opts)
	require.NoError(t, err)

	_, err = f.submit(t, models.JobKindTextToVideo, models.JobOptions{Prompt: "a lake", DurationSec: 10})
	require.NoError(t, err)

	require.Len(t, *specs, 3)
	assert.Equal(t, testimonialFraming+"a customer testimonial interview with our spokesperson", (*specs)[0].Prompt)
	assert.Equal(t, "testimonial interview, talking head of our spokesperson", (*specs)[1].Prompt, "framing already present")
	assert.Equal(t, "a lake", (*specs)[2].Prompt)
}

// etaRecorder snapshots the job after each stage transition.
type etaRecorder struct {
	*jobs.Tracker
	byLabel map[string]models.JobRecord
}

func (r *etaRecorder) Advance(id, label string, percent int) error {
	if err := r.Tracker.Advance(id, label, percent); err != nil {
		return err
	}
	rec, err := r.Tracker.Get(id)
	if err != nil {
		return err
	}
	if _, seen := r.byLabel[label]; !seen {
		r.byLabel[label] = rec
	}
	return nil
}

func TestOrchestratorKeepsInitialEstimateWhileAnalyzing(t *testing.T) {
	f := newE2E(t, stubTable("stub-success"), nil, succeeding("stub-success", 10))
	recorder := &etaRecorder{Tracker: f.tracker, byLabel: map[string]models.JobRecord{}}
	f.orchestrator.tracker = recorder

	opts := models.JobOptions{Prompt: "a lake", DurationSec: 10}
	_, err := f.submit(t, models.JobKindTextToVideo, opts)
	require.NoError(t, err)

	analyzing, ok := recorder.byLabel[models.StageLabelAnalyzing]
	require.True(t, ok)
	assert.Less(t, analyzing.ProgressPercent, 10)
	require.NotNil(t, analyzing.EstimatedSecondsRemaining)
	assert.Equal(t, jobs.InitialEstimate(10, false), *analyzing.EstimatedSecondsRemaining)
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

type hybridFixture struct {
	registry  *Registry
	selector  *Selector
	executor  *Executor
	toolkit   *fakeToolkit
	assembler *HybridAssembler
	hybrid    *HybridProvider
}

func newHybridFixture(t *testing.T, providers map[models.ProviderID]*stubProvider) *hybridFixture {
	t.Helper()
	f := &hybridFixture{registry: NewRegistry(), toolkit: newFakeToolkit()}

	// Fixed registration order keeps ranks deterministic.
	for _, id := range []models.ProviderID{models.ProviderRunway, models.ProviderPexels, models.ProviderXAI} {
		if p, ok := providers[id]; ok {
			register(t, f.registry, p, 0)
		}
	}

	f.selector = NewSelector(f.registry, nil)
	f.executor = NewExecutor(f.registry, time.Second)
	f.assembler = NewHybridAssembler(f.registry, f.selector, f.executor, f.toolkit, 2)
	f.hybrid = NewHybridProvider(NewPlanner(), f.assembler)
	require.NoError(t, f.registry.Register(f.hybrid, f.hybrid.Config()))
	return f
}

func TestSegmentChainExcludesRecursiveProviders(t *testing.T) {
	f := newHybridFixture(t, map[models.ProviderID]*stubProvider{
		models.ProviderRunway: succeeding(models.ProviderRunway, 4),
		models.ProviderPexels: succeeding(models.ProviderPexels, 10),
	})

	seg := models.Segment{SubPrompt: "promote our product brand", TargetDuration: 3, Source: models.ProviderHybrid}
	chain := f.assembler.SegmentChain(seg, "")

	assert.NotContains(t, chain, models.ProviderHybrid)
	assert.ElementsMatch(t, ProviderRank{models.ProviderRunway, models.ProviderPexels}, chain)
}

func TestSegmentChainStartsWithPlannedSource(t *testing.T) {
	f := newHybridFixture(t, map[models.ProviderID]*stubProvider{
		models.ProviderRunway: succeeding(models.ProviderRunway, 4),
		models.ProviderPexels: succeeding(models.ProviderPexels, 10),
	})

	chain := f.assembler.SegmentChain(models.Segment{SubPrompt: "a lake", TargetDuration: 3, Source: models.ProviderPexels}, "")
	assert.Equal(t, ProviderRank{models.ProviderPexels, models.ProviderRunway}, chain)
}

func TestHybridProviderNeverRecurses(t *testing.T) {
	f := newHybridFixture(t, map[models.ProviderID]*stubProvider{
		models.ProviderPexels: succeeding(models.ProviderPexels, 5),
	})

	// Even an explicit hybrid request only reaches non-recursive sources.
	exec := NewExecutor(f.registry, time.Second)
	outcome, err := exec.Execute(context.Background(), ProviderRank{models.ProviderHybrid},
		videoReq("promote our product brand", 15, models.ProviderHybrid), filepath.Join(t.TempDir(), "render.mp4"))
	require.NoError(t, err)

	assert.Equal(t, models.ProviderHybrid, outcome.Provider)
	assert.Equal(t, []models.ProviderID{models.ProviderHybrid, models.ProviderPexels}, outcome.Result.Provenance)
	require.Len(t, f.toolkit.concatIn, 1)
	for _, clip := range f.toolkit.concatIn[0] {
		assert.Contains(t, filepath.Base(clip), ".pexels.")
	}
}

func TestAssembleDropsFailedSegmentsInOrder(t *testing.T) {
	// Pexels fails only for the middle segment.
	pexels := &stubProvider{
		id:         models.ProviderPexels,
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			if spec.Prompt == "middle" {
				return nil, errors.New("no footage")
			}
			if err := writeTestFile(spec.OutputPath, spec.Prompt); err != nil {
				return nil, err
			}
			return &services.Result{Kind: models.ArtifactKindVideo, Path: spec.OutputPath, DurationSec: 3}, nil
		},
	}
	f := newHybridFixture(t, map[models.ProviderID]*stubProvider{models.ProviderPexels: pexels})

	out := filepath.Join(t.TempDir(), "hybrid.mp4")
	f.toolkit.durations[out] = 6
	plan := models.SegmentPlan{Segments: []models.Segment{
		{SubPrompt: "first", TargetDuration: 3, Source: models.ProviderPexels},
		{SubPrompt: "middle", TargetDuration: 4, Source: models.ProviderPexels},
		{SubPrompt: "last", TargetDuration: 3, Source: models.ProviderPexels},
	}}

	artifact, err := f.assembler.Assemble(context.Background(), plan, "", out)
	require.NoError(t, err)

	require.Len(t, f.toolkit.concatIn, 1)
	clips := f.toolkit.concatIn[0]
	require.Len(t, clips, 2)
	assert.Equal(t, "segment-01.pexels.mp4", filepath.Base(clips[0]))
	assert.Equal(t, "segment-03.pexels.mp4", filepath.Base(clips[1]))

	assert.Equal(t, out, artifact.Path)
	assert.Equal(t, 6.0, artifact.DurationSec)
	require.Len(t, artifact.Warnings, 1)
	assert.Contains(t, artifact.Warnings[0], "segment 2 dropped")
	assert.Contains(t, artifact.Warnings[0], "no footage")
}

func TestAssembleAllSegmentsFail(t *testing.T) {
	f := newHybridFixture(t, map[models.ProviderID]*stubProvider{
		models.ProviderPexels: failing(models.ProviderPexels, "rate limited"),
		models.ProviderRunway: failing(models.ProviderRunway, "server error"),
	})

	plan := NewPlanner().Plan("a city at night", 10, models.CategoryGeneric)
	_, err := f.assembler.Assemble(context.Background(), plan, "", filepath.Join(t.TempDir(), "hybrid.mp4"))
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrSegmentGenerationFailed))
	assert.True(t, errors.Is(err, ErrAllProvidersExhausted))

	var segErr *SegmentFailureError
	require.True(t, errors.As(err, &segErr))
	assert.Len(t, segErr.Errors, len(plan.Segments))
	assert.Contains(t, err.Error(), "rate limited")
	assert.Contains(t, err.Error(), "server error")
	assert.Empty(t, f.toolkit.concatIn)
}

func TestAssembleFallsBackPerSegment(t *testing.T) {
	f := newHybridFixture(t, map[models.ProviderID]*stubProvider{
		models.ProviderRunway: succeeding(models.ProviderRunway, 4),
		models.ProviderPexels: failing(models.ProviderPexels, "no footage"),
	})

	plan := models.SegmentPlan{Segments: []models.Segment{
		{SubPrompt: "a", TargetDuration: 3, Source: models.ProviderPexels},
		{SubPrompt: "b", TargetDuration: 3, Source: models.ProviderPexels},
	}}
	artifact, err := f.assembler.Assemble(context.Background(), plan, "", filepath.Join(t.TempDir(), "hybrid.mp4"))
	require.NoError(t, err)

	assert.Equal(t, []models.ProviderID{models.ProviderRunway}, artifact.Provenance)
	assert.Empty(t, artifact.Warnings)
	assert.InDelta(t, 6.0, artifact.DurationSec, 1e-9, "planned duration is used when probing fails")
}

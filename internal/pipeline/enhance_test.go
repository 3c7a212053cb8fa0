package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

func sourceArtifact(t *testing.T) *models.ArtifactDescriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.mp4")
	require.NoError(t, writeTestFile(path, "video"))
	return &models.ArtifactDescriptor{
		Path:        path,
		Kind:        models.ArtifactKindVideo,
		DurationSec: 8,
		Provenance:  []models.ProviderID{models.ProviderXAI},
	}
}

func newVoiceEnhancer(t *testing.T, toolkit *fakeToolkit, narrationSec float64) *Enhancer {
	t.Helper()
	r := NewRegistry()
	register(t, r, textProvider(models.ProviderOpenAI, models.CapabilityScript, "Meet the team."), 0)
	register(t, r, voiceProvider(models.ProviderElevenLabs, narrationSec), 0)

	selector := NewSelector(r, nil)
	executor := NewExecutor(r, time.Second)
	return NewEnhancer(toolkit, NewVoiceoverStage(selector, executor, toolkit))
}

func TestEnhanceRunsStagesInFixedOrder(t *testing.T) {
	toolkit := newFakeToolkit()
	e := newVoiceEnhancer(t, toolkit, 8)
	in := sourceArtifact(t)

	var seen []string
	out, warnings := e.Apply(context.Background(), in, EnhanceOptions{
		Style:          "cinematic",
		EnhanceObjects: true,
		Smoothing:      true,
		Voiceover:      true,
		Prompt:         "a bakery opening",
		OnStage:        func(stage string) { seen = append(seen, stage) },
	})

	assert.Empty(t, warnings)
	assert.Equal(t, []string{StageSmoothing, StageObjectConsistency, StageStyle, StageVoiceover}, seen)
	assert.Equal(t, []string{services.SmoothingFilter, services.ObjectConsistencyFilter, services.StyleFilter("cinematic")}, toolkit.filters)
	assert.Equal(t, "render.smooth.objects.styled.voiced.mp4", filepath.Base(out.Path))
	assert.Equal(t, []models.ProviderID{models.ProviderXAI, models.ProviderOpenAI, models.ProviderElevenLabs}, out.Provenance)
	assert.Equal(t, "render.mp4", filepath.Base(in.Path), "input is not modified")
}

func TestEnhanceStageFailurePassesInputThrough(t *testing.T) {
	toolkit := newFakeToolkit()
	toolkit.failFilter[services.ObjectConsistencyFilter] = true
	e := NewEnhancer(toolkit, nil)

	out, warnings := e.Apply(context.Background(), sourceArtifact(t), EnhanceOptions{Smoothing: true, EnhanceObjects: true, Style: "natural"})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], StageObjectConsistency)
	assert.Equal(t, "render.smooth.styled.mp4", filepath.Base(out.Path))
	assert.Equal(t, warnings, out.Warnings)
}

func TestEnhanceVoiceoverPanicIsContained(t *testing.T) {
	toolkit := newFakeToolkit()
	toolkit.panicMix = true
	e := newVoiceEnhancer(t, toolkit, 8)
	in := sourceArtifact(t)

	out, warnings := e.Apply(context.Background(), in, EnhanceOptions{Voiceover: true, Narration: "Hello there."})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "voiceover stage panicked")
	assert.Equal(t, in.Path, out.Path)
}

func TestEnhanceVoiceoverUsesNarrationAndMixPlan(t *testing.T) {
	toolkit := newFakeToolkit()
	e := newVoiceEnhancer(t, toolkit, 12)
	in := sourceArtifact(t)

	out, warnings := e.Apply(context.Background(), in, EnhanceOptions{Voiceover: true, Narration: "A much longer narration."})
	require.Empty(t, warnings)

	require.Len(t, toolkit.mixes, 1)
	assert.True(t, toolkit.mixes[0].LoopVideo)
	assert.Equal(t, 12.0, out.DurationSec)
	assert.NotContains(t, out.Provenance, models.ProviderOpenAI, "supplied narration skips script writing")
}

func TestEnhanceVoiceoverFailureIsWarning(t *testing.T) {
	toolkit := newFakeToolkit()
	r := NewRegistry()
	e := NewEnhancer(toolkit, NewVoiceoverStage(NewSelector(r, nil), NewExecutor(r, time.Second), toolkit))
	in := sourceArtifact(t)

	out, warnings := e.Apply(context.Background(), in, EnhanceOptions{Voiceover: true, Narration: "hi"})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no eligible provider")
	assert.Equal(t, in.Path, out.Path)
}

func TestPlanVoiceoverMix(t *testing.T) {
	tests := []struct {
		name      string
		video     float64
		narration float64
		loopVideo bool
		loopAudio bool
		target    float64
	}{
		{"narration longer loops video", 8, 12, true, false, 12},
		{"narration much shorter loops audio", 10, 6, false, true, 10},
		{"within tolerance leaves both", 10, 9.6, false, false, 10},
		{"equal lengths", 10, 10, false, false, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mix := PlanVoiceoverMix(tt.video, tt.narration)
			assert.Equal(t, tt.loopVideo, mix.LoopVideo)
			assert.Equal(t, tt.loopAudio, mix.LoopAudio)
			assert.Equal(t, tt.target, mix.TargetSec)
			assert.Equal(t, 0.05, mix.FadeSec)
		})
	}
}

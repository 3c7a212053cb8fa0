package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

const (
	// narrationTolerance is how much shorter narration may be before it is looped.
	narrationTolerance = 0.5
	spliceFadeSec      = 0.05
)

// PlanVoiceoverMix reconciles narration and video lengths. Longer narration
// loops the video up to the narration length. Narration shorter by more than
// the tolerance is looped and trimmed to the video length.
func PlanVoiceoverMix(videoSec, narrationSec float64) services.AudioMix {
	mix := services.AudioMix{TargetSec: videoSec, FadeSec: spliceFadeSec}

	switch {
	case narrationSec > videoSec:
		mix.LoopVideo = true
		mix.TargetSec = narrationSec
	case videoSec-narrationSec > narrationTolerance:
		mix.LoopAudio = true
	}
	return mix
}

// VoiceoverStage writes (or takes) a script, synthesizes it through the voice
// chain and mixes it onto the video.
type VoiceoverStage struct {
	selector *Selector
	executor *Executor
	toolkit  MediaToolkit
}

func NewVoiceoverStage(selector *Selector, executor *Executor, toolkit MediaToolkit) *VoiceoverStage {
	return &VoiceoverStage{selector: selector, executor: executor, toolkit: toolkit}
}

func (v *VoiceoverStage) Run(ctx context.Context, in *models.ArtifactDescriptor, opts EnhanceOptions) (*models.ArtifactDescriptor, error) {
	videoSec := in.DurationSec
	if videoSec <= 0 {
		probed, err := v.toolkit.ProbeDuration(ctx, in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to probe video: %w", err)
		}
		videoSec = probed
	}

	provenance := append([]models.ProviderID(nil), in.Provenance...)

	script := strings.TrimSpace(opts.Narration)
	if script == "" {
		req := models.CapabilityRequest{
			Capability:  models.CapabilityScript,
			Prompt:      opts.Prompt,
			DurationSec: videoSec,
		}
		outcome, err := v.executor.Execute(ctx, v.selector.Rank(req, content.Classify(opts.Prompt)), req, "")
		if err != nil {
			return nil, fmt.Errorf("script: %w", err)
		}
		script = outcome.Result.Text
		provenance = appendUnique(provenance, outcome.Provider)
	}

	voiceReq := models.CapabilityRequest{
		Capability:     models.CapabilityVoiceover,
		Prompt:         script,
		DurationSec:    videoSec,
		VoiceReference: opts.VoiceReference,
	}
	audioPath := strings.TrimSuffix(in.Path, filepath.Ext(in.Path)) + ".narration.mp3"

	outcome, err := v.executor.Execute(ctx, v.selector.Rank(voiceReq, content.Signals{Category: models.CategoryGeneric}), voiceReq, audioPath)
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}
	provenance = appendUnique(provenance, outcome.Provider)

	narrationSec, err := v.toolkit.ProbeDuration(ctx, outcome.Result.Path)
	if err != nil || narrationSec <= 0 {
		narrationSec = outcome.Result.DurationSec
	}

	mix := PlanVoiceoverMix(videoSec, narrationSec)
	outPath := withSuffix(in.Path, "voiced")

	log.Printf("[Voiceover] Mixing %.2fs narration onto %.2fs video (loopVideo=%v, loopAudio=%v)",
		narrationSec, videoSec, mix.LoopVideo, mix.LoopAudio)

	if err := v.toolkit.MixVoiceover(ctx, in.Path, outcome.Result.Path, outPath, mix); err != nil {
		return nil, err
	}
	if err := requireFile(outPath); err != nil {
		return nil, err
	}

	out := in.Clone()
	out.Path = outPath
	out.DurationSec = mix.TargetSec
	out.Provenance = provenance
	return out, nil
}

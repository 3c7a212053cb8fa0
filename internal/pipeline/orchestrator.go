package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
)

// Stage progress checkpoints. Analyzing sits below the ETA threshold so the
// submission estimate survives until rendering has a real sample.
const (
	progressAnalyzing = 5
	progressRendering = 20
	progressRendered  = 80
	progressEnhancing = 85
	progressVoiceover = 90
	progressFinalize  = 95
)

// testimonialThreshold is the testimonial score above which the prompt gets
// explicit face framing.
const testimonialThreshold = 0.5

const testimonialFraming = "Close-up shot of a person speaking directly to camera, showing face and upper body, making eye contact: "

// ProgressTracker receives the job's stage transitions. jobs.Tracker
// implements it.
type ProgressTracker interface {
	Advance(id, label string, percent int) error
	Complete(id string, artifact *models.ArtifactDescriptor) error
	Fail(id, reason string) error
}

// Publisher uploads a finished artifact and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, jobID string, artifact *models.ArtifactDescriptor) (string, error)
}

// ---------------------------------------------------------------------------
// Orchestrator
// Runs one job end to end:
//   analyzing -> rendering -> enhancing_video / adding_voiceover -> finalizing
// and records exactly one terminal state for it.
// ---------------------------------------------------------------------------

type Orchestrator struct {
	selector  *Selector
	executor  *Executor
	enhancer  *Enhancer
	tracker   ProgressTracker
	publisher Publisher // optional
	workDir   string
}

func NewOrchestrator(selector *Selector, executor *Executor, enhancer *Enhancer, tracker ProgressTracker, publisher Publisher, workDir string) *Orchestrator {
	return &Orchestrator{
		selector:  selector,
		executor:  executor,
		enhancer:  enhancer,
		tracker:   tracker,
		publisher: publisher,
		workDir:   workDir,
	}
}

// Run executes the job and records its terminal state. The returned error is
// the reason the job failed, already recorded on the tracker.
func (o *Orchestrator) Run(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) error {
	artifact, err := o.run(ctx, jobID, kind, opts)
	if err != nil {
		if failErr := o.tracker.Fail(jobID, err.Error()); failErr != nil {
			log.Printf("[Orchestrator] Job %s: failed to record failure: %v", jobID, failErr)
		}
		return err
	}

	if err := o.tracker.Complete(jobID, artifact); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string, kind models.JobKind, opts models.JobOptions) (*models.ArtifactDescriptor, error) {
	if err := o.tracker.Advance(jobID, models.StageLabelAnalyzing, progressAnalyzing); err != nil {
		return nil, err
	}

	jobDir := filepath.Join(o.workDir, jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}

	duration := opts.DurationSec
	if duration <= 0 {
		duration = defaultPlanDuration
	}

	prompt := content.Sanitize(opts.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	var warnings []string

	if kind == models.JobKindImageToVideo || opts.ImageURL != "" {
		description, err := o.describeImage(ctx, prompt, opts.ImageURL)
		if err != nil {
			log.Printf("[Orchestrator] Job %s: image analysis failed, continuing with prompt only: %v", jobID, err)
			warnings = append(warnings, fmt.Sprintf("image analysis skipped: %v", err))
		} else {
			prompt = prompt + "\n\nReference image: " + description
		}
	}

	signals := content.Classify(prompt)

	style := opts.Style
	if style == "" {
		style = content.SuggestParameters(signals.Category).Style
	}
	log.Printf("[Orchestrator] Job %s: category=%s style=%s duration=%.1fs override=%q", jobID, signals.Category, style, duration, opts.Provider)

	if err := o.tracker.Advance(jobID, models.StageLabelRendering, progressRendering); err != nil {
		return nil, err
	}

	req := models.CapabilityRequest{
		Capability:  models.CapabilityVideoFromText,
		Prompt:      framePrompt(prompt, signals),
		DurationSec: duration,
		Style:       style,
		ImageURL:    opts.ImageURL,
		Override:    opts.Provider,
	}
	rank := o.selector.Rank(req, signals)
	log.Printf("[Orchestrator] Job %s: provider rank %v", jobID, rank)

	outcome, err := o.executor.Execute(ctx, rank, req, filepath.Join(jobDir, "render.mp4"))
	if err != nil {
		return nil, err
	}
	for _, f := range outcome.Failures {
		warnings = append(warnings, fmt.Sprintf("fallback: %v", f))
	}
	warnings = append(warnings, outcome.Result.Warnings...)

	resultDuration := outcome.Result.DurationSec
	if resultDuration <= 0 {
		resultDuration = duration
	}
	artifact := &models.ArtifactDescriptor{
		Path:        outcome.Result.Path,
		Kind:        models.ArtifactKindVideo,
		DurationSec: resultDuration,
		Provenance:  outcome.Result.Provenance,
		Warnings:    warnings,
	}

	if err := o.tracker.Advance(jobID, models.StageLabelRendering, progressRendered); err != nil {
		return nil, err
	}

	if o.enhancer != nil {
		enhanceOpts := EnhanceOptions{
			Smoothing:      opts.Smoothing,
			EnhanceObjects: opts.EnhanceObjects,
			Style:          opts.Style,
			Voiceover:      opts.Voiceover,
			Narration:      opts.Narration,
			VoiceReference: opts.VoiceReference,
			Prompt:         prompt,
			OnStage: func(stage string) {
				label, percent := models.StageLabelEnhancingVideo, progressEnhancing
				if stage == StageVoiceover {
					label, percent = models.StageLabelAddingVoiceover, progressVoiceover
				}
				if err := o.tracker.Advance(jobID, label, percent); err != nil {
					log.Printf("[Orchestrator] Job %s: progress update failed: %v", jobID, err)
				}
			},
		}
		artifact, _ = o.enhancer.Apply(ctx, artifact, enhanceOpts)
	}

	if o.publisher != nil {
		if err := o.tracker.Advance(jobID, models.StageLabelFinalizing, progressFinalize); err != nil {
			return nil, err
		}
		url, err := o.publisher.Publish(ctx, jobID, artifact)
		if err != nil {
			log.Printf("[Orchestrator] Job %s: publish failed, keeping local artifact: %v", jobID, err)
			artifact.Warnings = append(artifact.Warnings, fmt.Sprintf("publish skipped: %v", err))
		} else {
			artifact.URL = &url
		}
	}

	log.Printf("[Orchestrator] Job %s: finished %s (%.1fs, %d warnings)", jobID, filepath.Base(artifact.Path), artifact.DurationSec, len(artifact.Warnings))
	return artifact, nil
}

// framePrompt asks for a face-on shot when the prompt reads as a testimonial
// and does not already describe the framing.
func framePrompt(prompt string, signals content.Signals) string {
	if signals.Scores[models.CategoryTestimonial] <= testimonialThreshold {
		return prompt
	}
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "talking head") || strings.Contains(lower, "speaking to camera") {
		return prompt
	}
	return testimonialFraming + prompt
}

func (o *Orchestrator) describeImage(ctx context.Context, prompt, imageURL string) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("image job without image_url")
	}
	req := models.CapabilityRequest{
		Capability: models.CapabilityImageAnalysis,
		Prompt:     prompt,
		ImageURL:   imageURL,
	}
	outcome, err := o.executor.Execute(ctx, o.selector.Rank(req, content.Signals{Category: models.CategoryGeneric}), req, "")
	if err != nil {
		return "", err
	}
	return outcome.Result.Text, nil
}

package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

// Enhancement stage names, in the order they always run.
const (
	StageSmoothing         = "smoothing"
	StageObjectConsistency = "object_consistency"
	StageStyle             = "style"
	StageVoiceover         = "voiceover"
)

// EnhanceOptions selects which stages run. The order is fixed regardless of
// which are enabled.
type EnhanceOptions struct {
	Smoothing      bool
	EnhanceObjects bool
	Style          string
	Voiceover      bool
	Narration      string // used as-is when set, otherwise a script is written
	VoiceReference string
	Prompt         string // source prompt for script writing

	// OnStage is called before each enabled stage runs.
	OnStage func(stage string)
}

type enhanceStage struct {
	name    string
	enabled func(EnhanceOptions) bool
	run     func(ctx context.Context, in *models.ArtifactDescriptor, opts EnhanceOptions) (*models.ArtifactDescriptor, error)
}

// Enhancer runs the optional post-processing stages. A failing stage is
// logged, recorded as a warning and skipped; its input flows to the next.
type Enhancer struct {
	toolkit   MediaToolkit
	voiceover *VoiceoverStage
	stages    []enhanceStage
}

func NewEnhancer(toolkit MediaToolkit, voiceover *VoiceoverStage) *Enhancer {
	e := &Enhancer{toolkit: toolkit, voiceover: voiceover}
	e.stages = []enhanceStage{
		{
			name:    StageSmoothing,
			enabled: func(o EnhanceOptions) bool { return o.Smoothing },
			run: func(ctx context.Context, in *models.ArtifactDescriptor, _ EnhanceOptions) (*models.ArtifactDescriptor, error) {
				return e.filter(ctx, in, "smooth", services.SmoothingFilter)
			},
		},
		{
			name:    StageObjectConsistency,
			enabled: func(o EnhanceOptions) bool { return o.EnhanceObjects },
			run: func(ctx context.Context, in *models.ArtifactDescriptor, _ EnhanceOptions) (*models.ArtifactDescriptor, error) {
				return e.filter(ctx, in, "objects", services.ObjectConsistencyFilter)
			},
		},
		{
			name:    StageStyle,
			enabled: func(o EnhanceOptions) bool { return strings.TrimSpace(o.Style) != "" },
			run: func(ctx context.Context, in *models.ArtifactDescriptor, o EnhanceOptions) (*models.ArtifactDescriptor, error) {
				return e.filter(ctx, in, "styled", services.StyleFilter(o.Style))
			},
		},
		{
			name:    StageVoiceover,
			enabled: func(o EnhanceOptions) bool { return o.Voiceover && e.voiceover != nil },
			run: func(ctx context.Context, in *models.ArtifactDescriptor, o EnhanceOptions) (*models.ArtifactDescriptor, error) {
				return e.voiceover.Run(ctx, in, o)
			},
		},
	}
	return e
}

// Apply runs every enabled stage and returns the final artifact together with
// the warnings added by failed stages. The input artifact is not modified.
func (e *Enhancer) Apply(ctx context.Context, artifact *models.ArtifactDescriptor, opts EnhanceOptions) (*models.ArtifactDescriptor, []string) {
	current := artifact.Clone()
	var warnings []string

	for _, st := range e.stages {
		if !st.enabled(opts) {
			continue
		}
		if opts.OnStage != nil {
			opts.OnStage(st.name)
		}

		out, err := e.runStage(ctx, st, current, opts)
		if err != nil {
			log.Printf("[Enhance] Stage %s failed, passing input through: %v", st.name, err)
			warnings = append(warnings, err.Error())
			continue
		}
		current = out
	}

	current.Warnings = append(current.Warnings, warnings...)
	return current, warnings
}

func (e *Enhancer) runStage(ctx context.Context, st enhanceStage, in *models.ArtifactDescriptor, opts EnhanceOptions) (out *models.ArtifactDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %s stage panicked: %v", ErrEnhancementFailed, st.name, r)
		}
	}()

	out, err = st.run(ctx, in.Clone(), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEnhancementFailed, st.name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s produced no artifact", ErrEnhancementFailed, st.name)
	}
	return out, nil
}

func (e *Enhancer) filter(ctx context.Context, in *models.ArtifactDescriptor, suffix, filter string) (*models.ArtifactDescriptor, error) {
	outPath := withSuffix(in.Path, suffix)
	if err := e.toolkit.ApplyFilter(ctx, in.Path, outPath, filter); err != nil {
		return nil, err
	}
	if err := requireFile(outPath); err != nil {
		return nil, err
	}

	out := in.Clone()
	out.Path = outPath
	return out, nil
}

// withSuffix turns /dir/video.mp4 into /dir/video.<suffix>.mp4.
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + suffix + ext
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", filepath.Base(path))
	}
	return nil
}

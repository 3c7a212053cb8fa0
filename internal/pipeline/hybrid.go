package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

// MediaToolkit is the media processing the pipeline needs.
// services.FFmpegService implements it.
type MediaToolkit interface {
	ApplyFilter(ctx context.Context, inputPath, outputPath, filter string) error
	Concatenate(ctx context.Context, clipPaths []string, outputPath string) error
	MixVoiceover(ctx context.Context, videoPath, audioPath, outputPath string, mix services.AudioMix) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

var _ MediaToolkit = (*services.FFmpegService)(nil)

// SegmentFailureError is returned when no planned segment could be generated.
type SegmentFailureError struct {
	Errors []error // one per planned segment, in plan order
}

func (e *SegmentFailureError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = fmt.Sprintf("segment %d: %v", i+1, err)
	}
	return fmt.Sprintf("%v: all %d segments failed: %s", ErrSegmentGenerationFailed, len(e.Errors), strings.Join(parts, " | "))
}

func (e *SegmentFailureError) Unwrap() []error {
	return append([]error{ErrSegmentGenerationFailed}, e.Errors...)
}

// ---------------------------------------------------------------------------
// HybridAssembler
// Generates planned segments concurrently and stitches the survivors in plan
// order. Segment chains only ever contain non-recursive providers, so hybrid
// assembly can never re-enter itself.
// ---------------------------------------------------------------------------

type HybridAssembler struct {
	registry    *Registry
	selector    *Selector
	executor    *Executor
	toolkit     MediaToolkit
	concurrency int
}

func NewHybridAssembler(registry *Registry, selector *Selector, executor *Executor, toolkit MediaToolkit, concurrency int) *HybridAssembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HybridAssembler{
		registry:    registry,
		selector:    selector,
		executor:    executor,
		toolkit:     toolkit,
		concurrency: concurrency,
	}
}

// SegmentChain is the provider chain used for one segment: the planned source
// first when usable, then the selector's order for the sub-prompt, with every
// recursive provider removed.
func (h *HybridAssembler) SegmentChain(seg models.Segment, style string) ProviderRank {
	var chain ProviderRank
	seen := make(map[models.ProviderID]bool)

	if _, cfg, ok := h.registry.Lookup(models.CapabilityVideoFromText, seg.Source); ok && cfg.Configured && !cfg.Recursive {
		chain = append(chain, seg.Source)
		seen[seg.Source] = true
	}

	req := models.CapabilityRequest{
		Capability:  models.CapabilityVideoFromText,
		Prompt:      seg.SubPrompt,
		DurationSec: seg.TargetDuration,
		Style:       style,
	}
	for _, id := range h.selector.Rank(req, content.Classify(seg.SubPrompt)) {
		if seen[id] {
			continue
		}
		if _, cfg, ok := h.registry.Lookup(models.CapabilityVideoFromText, id); !ok || cfg.Recursive {
			continue
		}
		chain = append(chain, id)
		seen[id] = true
	}
	return chain
}

// Assemble generates every segment of plan and concatenates the successful
// ones into outputPath. Dropped segments become warnings.
func (h *HybridAssembler) Assemble(ctx context.Context, plan models.SegmentPlan, style, outputPath string) (*models.ArtifactDescriptor, error) {
	if len(plan.Segments) == 0 {
		return nil, &SegmentFailureError{}
	}

	log.Printf("[Hybrid] Assembling %d segments (category=%s, concurrency=%d)", len(plan.Segments), plan.Category, h.concurrency)

	results := make([]*services.Result, len(plan.Segments))
	errs := make([]error, len(plan.Segments))

	var g errgroup.Group
	g.SetLimit(h.concurrency)

	for i, seg := range plan.Segments {
		i, seg := i, seg
		g.Go(func() error {
			chain := h.SegmentChain(seg, style)
			req := models.CapabilityRequest{
				Capability:  models.CapabilityVideoFromText,
				Prompt:      seg.SubPrompt,
				DurationSec: seg.TargetDuration,
				Style:       style,
			}
			segPath := filepath.Join(filepath.Dir(outputPath), fmt.Sprintf("segment-%02d.mp4", i+1))

			outcome, err := h.executor.Execute(ctx, chain, req, segPath)
			if err != nil {
				log.Printf("[Hybrid] Segment %d/%d dropped: %v", i+1, len(plan.Segments), err)
				errs[i] = err
				return nil
			}
			results[i] = outcome.Result
			return nil
		})
	}
	_ = g.Wait()

	var clips []string
	var provenance []models.ProviderID
	var warnings []string
	var plannedSec float64

	for i, res := range results {
		if res == nil {
			warnings = append(warnings, fmt.Sprintf("segment %d dropped: %v", i+1, errs[i]))
			continue
		}
		clips = append(clips, res.Path)
		plannedSec += plan.Segments[i].TargetDuration
		provenance = appendUnique(provenance, res.Provenance...)
	}

	if len(clips) == 0 {
		return nil, &SegmentFailureError{Errors: errs}
	}

	if err := h.toolkit.Concatenate(ctx, clips, outputPath); err != nil {
		return nil, fmt.Errorf("failed to concatenate %d segments: %w", len(clips), err)
	}

	duration, err := h.toolkit.ProbeDuration(ctx, outputPath)
	if err != nil {
		log.Printf("[Hybrid] Could not probe %s, using planned duration: %v", filepath.Base(outputPath), err)
		duration = plannedSec
	}

	log.Printf("[Hybrid] Assembled %d/%d segments (%.1fs) from %v", len(clips), len(plan.Segments), duration, provenance)

	return &models.ArtifactDescriptor{
		Path:        outputPath,
		Kind:        models.ArtifactKindVideo,
		DurationSec: duration,
		Provenance:  provenance,
		Warnings:    warnings,
	}, nil
}

func appendUnique(ids []models.ProviderID, more ...models.ProviderID) []models.ProviderID {
	for _, id := range more {
		found := false
		for _, existing := range ids {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, id)
		}
	}
	return ids
}

// ---------------------------------------------------------------------------
// HybridProvider
// Exposes classify -> plan -> assemble as a video provider so it can sit in
// a top-level fallback chain like any other backend.
// ---------------------------------------------------------------------------

type HybridProvider struct {
	planner   Planner
	assembler *HybridAssembler
}

var _ services.ProviderClient = (*HybridProvider)(nil)

func NewHybridProvider(planner Planner, assembler *HybridAssembler) *HybridProvider {
	return &HybridProvider{planner: planner, assembler: assembler}
}

func (p *HybridProvider) ID() models.ProviderID         { return models.ProviderHybrid }
func (p *HybridProvider) Capability() models.Capability { return models.CapabilityVideoFromText }

// Config is the registry entry for the hybrid provider.
func (p *HybridProvider) Config() ProviderConfig {
	return ProviderConfig{
		ID:         models.ProviderHybrid,
		Capability: models.CapabilityVideoFromText,
		Configured: true,
		Recursive:  true,
	}
}

func (p *HybridProvider) Generate(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
	signals := content.Classify(spec.Prompt)
	plan := p.planner.Plan(spec.Prompt, spec.DurationSec, signals.Category)

	artifact, err := p.assembler.Assemble(ctx, plan, spec.Style, spec.OutputPath)
	if err != nil {
		return nil, err
	}

	return &services.Result{
		Provider:    models.ProviderHybrid,
		Kind:        models.ArtifactKindVideo,
		Path:        artifact.Path,
		DurationSec: artifact.DurationSec,
		Provenance:  appendUnique([]models.ProviderID{models.ProviderHybrid}, artifact.Provenance...),
		Warnings:    artifact.Warnings,
	}, nil
}

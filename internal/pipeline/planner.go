package pipeline

import (
	"math"
	"strings"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
)

const (
	defaultPlanDuration = 10.0

	// testimonial layout
	dominantShare       = 0.7
	dominantMaxSec      = 20.0
	brollMinDurationSec = 10.0 // B-roll only when the request is longer than this
	brollMaxSegments    = 2
	brollShare          = 0.15
	brollMaxSec         = 5.0

	// generic layout
	edgeSegmentSec = 3.0
	reservedEdges  = 6.0
	minMiddleSec   = 4.0
	defaultClosing = "closing shot, "
)

var (
	introKeywords   = []string{"intro", "opening"}
	closingKeywords = []string{"conclusion", "ending", "closing"}
)

// Planner splits a request into segments for hybrid assembly.
type Planner struct {
	SpeechSource  models.ProviderID // dominant testimonial segment
	StockSource   models.ProviderID // testimonial B-roll
	GenericSource models.ProviderID // every generic-layout segment
}

func NewPlanner() Planner {
	return Planner{
		SpeechSource:  models.ProviderRunway,
		StockSource:   models.ProviderPexels,
		GenericSource: models.ProviderPexels,
	}
}

// Plan never returns a segment with a non-positive duration.
func (p Planner) Plan(prompt string, durationSec float64, category models.ContentCategory) models.SegmentPlan {
	if durationSec <= 0 {
		durationSec = defaultPlanDuration
	}

	plan := models.SegmentPlan{Category: category}
	if category == models.CategoryTestimonial {
		plan.Segments = p.testimonialSegments(prompt, durationSec)
	} else {
		plan.Segments = p.genericSegments(prompt, durationSec)
	}
	return plan
}

func (p Planner) testimonialSegments(prompt string, d float64) []models.Segment {
	segments := []models.Segment{{
		SubPrompt:      prompt,
		TargetDuration: math.Min(dominantShare*d, dominantMaxSec),
		Source:         p.SpeechSource,
	}}

	if d <= brollMinDurationSec {
		return segments
	}

	scenes := content.ExtractScenes(prompt)
	if len(scenes) == 0 {
		scenes = content.DefaultScenes(content.DetectIndustry(prompt))
	}
	if len(scenes) < 2 {
		return segments
	}
	if len(scenes) > brollMaxSegments {
		scenes = scenes[:brollMaxSegments]
	}

	brollSec := math.Min(brollMaxSec, brollShare*d)
	for _, scene := range scenes {
		segments = append(segments, models.Segment{
			SubPrompt:      scene,
			TargetDuration: brollSec,
			Source:         p.StockSource,
		})
	}
	return segments
}

func (p Planner) genericSegments(prompt string, d float64) []models.Segment {
	lower := strings.ToLower(prompt)
	var segments []models.Segment

	if containsAny(lower, introKeywords) {
		segments = append(segments, models.Segment{
			SubPrompt:      "opening shot, " + prompt,
			TargetDuration: edgeSegmentSec,
			Source:         p.GenericSource,
		})
	}

	segments = append(segments, models.Segment{
		SubPrompt:      prompt,
		TargetDuration: math.Max(minMiddleSec, d-reservedEdges),
		Source:         p.GenericSource,
	})

	if containsAny(lower, closingKeywords) {
		segments = append(segments, models.Segment{
			SubPrompt:      "concluding shot, " + prompt,
			TargetDuration: edgeSegmentSec,
			Source:         p.GenericSource,
		})
	}

	if len(segments) < 2 {
		segments = append(segments, models.Segment{
			SubPrompt:      defaultClosing + prompt,
			TargetDuration: edgeSegmentSec,
			Source:         p.GenericSource,
		})
	}
	return segments
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

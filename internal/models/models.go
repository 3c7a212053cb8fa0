package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Enums
type JobStage string

const (
	JobStagePending    JobStage = "pending"
	JobStageProcessing JobStage = "processing"
	JobStageCompleted  JobStage = "completed"
	JobStageFailed     JobStage = "failed"
)

// IsTerminal reports whether no further mutation is allowed in this stage.
func (s JobStage) IsTerminal() bool {
	return s == JobStageCompleted || s == JobStageFailed
}

// JobKind discriminates job flavors sharing the single JobRecord type.
type JobKind string

const (
	JobKindTextToVideo  JobKind = "text_to_video"
	JobKindImageToVideo JobKind = "image_to_video"
)

// Processing stage labels. Observability only, they do not gate transitions.
const (
	StageLabelAnalyzing        = "analyzing"
	StageLabelGeneratingScript = "generating_script"
	StageLabelRendering        = "rendering"
	StageLabelEnhancingVideo   = "enhancing_video"
	StageLabelAddingVoiceover  = "adding_voiceover"
	StageLabelFinalizing       = "finalizing"
)

type Capability string

const (
	CapabilityVideoFromText Capability = "video_from_text"
	CapabilityVoiceover     Capability = "voiceover"
	CapabilityImageAnalysis Capability = "image_analysis"
	CapabilityScript        Capability = "script"
)

type ArtifactKind string

const (
	ArtifactKindVideo ArtifactKind = "video"
	ArtifactKindAudio ArtifactKind = "audio"
	ArtifactKindText  ArtifactKind = "text"
)

// ContentCategory is the detected flavor of a prompt.
type ContentCategory string

const (
	CategoryTestimonial ContentCategory = "testimonial"
	CategoryCommercial  ContentCategory = "commercial"
	CategoryCinematic   ContentCategory = "cinematic"
	CategoryStock       ContentCategory = "stock"
	CategoryGeneric     ContentCategory = "generic"
)

// ProviderID names one external backend, e.g. "runway" or "pexels".
type ProviderID string

const (
	ProviderRunway     ProviderID = "runway"
	ProviderStability  ProviderID = "stability"
	ProviderPexels     ProviderID = "pexels"
	ProviderXAI        ProviderID = "xai"
	ProviderVeo        ProviderID = "veo"
	ProviderHybrid     ProviderID = "hybrid"
	ProviderElevenLabs ProviderID = "elevenlabs"
	ProviderCartesia   ProviderID = "cartesia"
	ProviderOpenAI     ProviderID = "openai"
	ProviderGemini     ProviderID = "gemini"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

// ArtifactDescriptor points at a produced media file. Ownership passes to the
// caller once returned.
type ArtifactDescriptor struct {
	Path        string       `json:"path"`
	URL         *string      `json:"url,omitempty"` // Set once the artifact is published
	Kind        ArtifactKind `json:"kind"`
	DurationSec float64      `json:"duration_sec"`
	Provenance  []ProviderID `json:"provenance"`
	Warnings    []string     `json:"warnings,omitempty"` // Non-fatal degradations (dropped segments, skipped enhancements)
}

// Clone returns a deep copy safe to hand to readers.
func (a *ArtifactDescriptor) Clone() *ArtifactDescriptor {
	if a == nil {
		return nil
	}
	out := *a
	if a.URL != nil {
		url := *a.URL
		out.URL = &url
	}
	out.Provenance = append([]ProviderID(nil), a.Provenance...)
	out.Warnings = append([]string(nil), a.Warnings...)
	return &out
}

// JobRecord is the tracked state of one submitted job.
type JobRecord struct {
	ID                        string              `json:"id"`
	Kind                      JobKind             `json:"kind"`
	Stage                     JobStage            `json:"stage"`
	StageLabel                string              `json:"stage_label,omitempty"`
	ProgressPercent           int                 `json:"progress_percent"`
	StartedAt                 *time.Time          `json:"started_at,omitempty"`
	EstimatedSecondsRemaining *int                `json:"estimated_seconds_remaining,omitempty"`
	Result                    *ArtifactDescriptor `json:"result,omitempty"`
	Error                     *string             `json:"error,omitempty"`
	CreatedAt                 time.Time           `json:"created_at"`
	UpdatedAt                 time.Time           `json:"updated_at"`
	FinishedAt                *time.Time          `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (r JobRecord) Clone() JobRecord {
	out := r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	if r.EstimatedSecondsRemaining != nil {
		eta := *r.EstimatedSecondsRemaining
		out.EstimatedSecondsRemaining = &eta
	}
	if r.Error != nil {
		msg := *r.Error
		out.Error = &msg
	}
	out.Result = r.Result.Clone()
	return out
}

// CapabilityRequest is one immutable ask of a provider chain.
type CapabilityRequest struct {
	Capability     Capability `json:"capability"`
	Prompt         string     `json:"prompt"`
	DurationSec    float64    `json:"duration_sec,omitempty"`
	Style          string     `json:"style,omitempty"`
	VoiceReference string     `json:"voice_reference,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Override       ProviderID `json:"override,omitempty"`
}

// Segment is one planned sub-clip of a hybrid video.
type Segment struct {
	SubPrompt      string     `json:"sub_prompt"`
	TargetDuration float64    `json:"target_duration"`
	Source         ProviderID `json:"source"`
}

type SegmentPlan struct {
	Category ContentCategory `json:"category"`
	Segments []Segment       `json:"segments"`
}

// TotalDuration sums the planned segment durations.
func (p SegmentPlan) TotalDuration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.TargetDuration
	}
	return total
}

// JobOptions carries everything a worker needs to run a job.
type JobOptions struct {
	Prompt         string     `json:"prompt"`
	DurationSec    float64    `json:"duration_sec"`
	Style          string     `json:"style,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Provider       ProviderID `json:"provider,omitempty"` // Explicit override, exclusive when set
	Voiceover      bool       `json:"voiceover"`
	Narration      string     `json:"narration,omitempty"` // Pre-written script, skips script generation
	VoiceReference string     `json:"voice_reference,omitempty"`
	Smoothing      bool       `json:"smoothing"`
	EnhanceObjects bool       `json:"enhance_objects"`
}

// DTOs for API requests and responses

type SubmitJobRequest struct {
	Prompt         string  `json:"prompt" validate:"required,max=4000"`
	DurationSec    float64 `json:"duration_sec" validate:"omitempty,gte=1,lte=120"`
	Style          string  `json:"style" validate:"omitempty,oneof=cinematic commercial testimonial polished natural realistic creative balanced"`
	ImageURL       string  `json:"image_url" validate:"omitempty,url"`
	Provider       string  `json:"provider" validate:"omitempty,max=32"`
	Voiceover      bool    `json:"voiceover"`
	Narration      string  `json:"narration" validate:"omitempty,max=5000"`
	VoiceReference string  `json:"voice_reference" validate:"omitempty,max=128"`
	Smoothing      *bool   `json:"smoothing,omitempty"`       // Default: true
	EnhanceObjects *bool   `json:"enhance_objects,omitempty"` // Default: true
}

type SubmitJobResponse struct {
	JobID string    `json:"job_id"`
	Stage JobStage  `json:"stage"`
	Job   JobRecord `json:"job"`
}

type PlanRequest struct {
	Prompt      string  `json:"prompt" validate:"required,max=4000"`
	DurationSec float64 `json:"duration_sec" validate:"omitempty,gte=1,lte=120"`
	Category    string  `json:"category" validate:"omitempty,oneof=testimonial commercial cinematic stock generic"`
	Provider    string  `json:"provider" validate:"omitempty,max=32"`
}

type PlanResponse struct {
	Category ContentCategory             `json:"category"`
	Scores   map[ContentCategory]float64 `json:"scores"`
	Rank     []ProviderID                `json:"rank"`
	Plan     SegmentPlan                 `json:"plan"`
}

// ProviderInfo describes one registered provider for the listing endpoint.
type ProviderInfo struct {
	ID             ProviderID `json:"id"`
	Capability     Capability `json:"capability"`
	Configured     bool       `json:"configured"`
	Recursive      bool       `json:"recursive"`
	MaxDurationSec float64    `json:"max_duration_sec,omitempty"` // 0 = no per-call ceiling
}

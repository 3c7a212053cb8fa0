package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/jobs"
	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/pipeline"
)

const defaultDurationSec = 10.0

// JobSubmitter queues a job and returns its pending record.
type JobSubmitter interface {
	Submit(ctx context.Context, kind models.JobKind, opts models.JobOptions) (models.JobRecord, error)
}

// JobReader serves job snapshots.
type JobReader interface {
	Get(id string) (models.JobRecord, error)
	List() []models.JobRecord
}

type Handler struct {
	submitter JobSubmitter // nil when this process runs no worker
	jobs      JobReader
	registry  *pipeline.Registry
	selector  *pipeline.Selector
	planner   pipeline.Planner
	validate  *validator.Validate
}

func NewHandler(submitter JobSubmitter, jobReader JobReader, registry *pipeline.Registry, selector *pipeline.Selector, planner pipeline.Planner) *Handler {
	return &Handler{
		submitter: submitter,
		jobs:      jobReader,
		registry:  registry,
		selector:  selector,
		planner:   planner,
		validate:  validator.New(),
	}
}

// SubmitJob handles POST /v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		respondValidationError(w, err)
		return
	}
	if content.Sanitize(req.Prompt) == "" {
		respondEmptyPrompt(w)
		return
	}

	if h.submitter == nil {
		respondError(w, http.StatusServiceUnavailable, "Job submission is disabled: no worker is running in this process")
		return
	}

	opts := jobOptions(req)
	kind := models.JobKindTextToVideo
	if opts.ImageURL != "" {
		kind = models.JobKindImageToVideo
	}

	rec, err := h.submitter.Submit(r.Context(), kind, opts)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Failed to queue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.SubmitJobResponse{
		JobID: rec.ID,
		Stage: rec.Stage,
		Job:   rec,
	})
}

// jobOptions applies request defaults. Smoothing and object enhancement are
// on unless explicitly disabled.
func jobOptions(req models.SubmitJobRequest) models.JobOptions {
	duration := req.DurationSec
	if duration <= 0 {
		duration = defaultDurationSec
	}

	opts := models.JobOptions{
		Prompt:         req.Prompt,
		DurationSec:    duration,
		Style:          req.Style,
		ImageURL:       req.ImageURL,
		Provider:       models.ProviderID(strings.ToLower(strings.TrimSpace(req.Provider))),
		Voiceover:      req.Voiceover,
		Narration:      req.Narration,
		VoiceReference: req.VoiceReference,
		Smoothing:      true,
		EnhanceObjects: true,
	}
	if req.Smoothing != nil {
		opts.Smoothing = *req.Smoothing
	}
	if req.EnhanceObjects != nil {
		opts.EnhanceObjects = *req.EnhanceObjects
	}
	return opts
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.jobs.Get(id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - stage: filter by stage (pending, processing, completed, failed)
//   - limit: max results (default 20, max 100), newest first
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	stageFilter := models.JobStage(r.URL.Query().Get("stage"))
	switch stageFilter {
	case "", models.JobStagePending, models.JobStageProcessing, models.JobStageCompleted, models.JobStageFailed:
	default:
		respondError(w, http.StatusBadRequest, "Invalid stage filter. Must be one of: pending, processing, completed, failed")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	all := h.jobs.List()
	out := make([]models.JobRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if stageFilter != "" && all[i].Stage != stageFilter {
			continue
		}
		out = append(out, all[i])
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
	})
}

// ListProviders handles GET /v1/providers
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.registry.Infos(),
	})
}

// PlanJob handles POST /v1/plan. It classifies the prompt and returns the
// provider rank and hybrid segment plan without generating anything.
func (h *Handler) PlanJob(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		respondValidationError(w, err)
		return
	}

	prompt := content.Sanitize(req.Prompt)
	if prompt == "" {
		respondEmptyPrompt(w)
		return
	}

	duration := req.DurationSec
	if duration <= 0 {
		duration = defaultDurationSec
	}

	signals := content.Classify(prompt)
	if req.Category != "" {
		signals.Category = content.ParseCategory(req.Category)
	}

	rank := h.selector.Rank(models.CapabilityRequest{
		Capability:  models.CapabilityVideoFromText,
		Prompt:      prompt,
		DurationSec: duration,
		Override:    models.ProviderID(strings.ToLower(strings.TrimSpace(req.Provider))),
	}, signals)

	respondJSON(w, http.StatusOK, models.PlanResponse{
		Category: signals.Category,
		Scores:   signals.Scores,
		Rank:     rank,
		Plan:     h.planner.Plan(prompt, duration, signals.Category),
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondEmptyPrompt(w http.ResponseWriter) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "Prompt has no usable text",
		"fields": map[string]string{"Prompt": "sanitized_empty"},
	})
}

func respondValidationError(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
	}
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "Validation failed",
		"fields": fields,
	})
}

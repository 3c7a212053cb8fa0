package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// xAI Grok Imagine Video Generation Service
// Uses the xAI REST API to generate videos from text prompts + optional images.
// Follows a deferred request pattern: submit generation → poll by request_id → download.
// ---------------------------------------------------------------------------

const (
	xaiBaseURL           = "https://api.x.ai/v1"
	xaiVideoModel        = "grok-imagine-video"
	xaiMinDuration       = 1  // xAI minimum video duration
	xaiMaxDuration       = 15 // xAI maximum video duration
	xaiDefaultDuration   = 8  // seconds (1-15 allowed)
	xaiDefaultAspect     = "16:9"
	xaiDefaultResolution = "720p" // 720p or 480p supported
)

// XAIVideoMaxDurationSec is the per-call ceiling the selector ranks against.
const XAIVideoMaxDurationSec = xaiMaxDuration

// XAIVideoService handles video generation via xAI's Grok Imagine Video API.
type XAIVideoService struct {
	apiKey     string
	baseURL    string
	poll       PollConfig
	httpClient *http.Client
}

var _ ProviderClient = (*XAIVideoService)(nil)

// NewXAIVideoService creates a new xAI video generation service.
func NewXAIVideoService(apiKey string, poll PollConfig) *XAIVideoService {
	return &XAIVideoService{
		apiKey:  apiKey,
		baseURL: xaiBaseURL,
		poll:    poll.normalized(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Timeout for individual HTTP calls, not the full poll cycle
		},
	}
}

func (s *XAIVideoService) ID() models.ProviderID         { return models.ProviderXAI }
func (s *XAIVideoService) Capability() models.Capability { return models.CapabilityVideoFromText }

// ---------------------------------------------------------------------------
// Request / Response types
// ---------------------------------------------------------------------------

// xaiGenerationRequest is the body for POST /v1/videos/generations
type xaiGenerationRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model"`
	Image       *xaiImageInput `json:"image,omitempty"`
	Duration    int            `json:"duration,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Resolution  string         `json:"resolution,omitempty"`
}

type xaiImageInput struct {
	URL string `json:"url"`
}

type xaiGenerationResponse struct {
	RequestID string `json:"request_id"`
}

// xaiVideoResult is the unified response from GET /v1/videos/{request_id}.
//
// xAI returns different shapes depending on state:
//   - Pending: {"status":"pending"}
//   - Completed: {"video":{"url":"...","duration":8},"model":"grok-imagine-video"} (no status field)
//   - Failed: {"status":"failed","error":"..."}
type xaiVideoResult struct {
	Status string          `json:"status"`
	Video  *xaiVideoOutput `json:"video,omitempty"`
	Model  string          `json:"model,omitempty"`
	Error  string          `json:"error"`
}

type xaiVideoOutput struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"`
}

// buildXAIVideoPrompt appends the requested style to the raw prompt.
func buildXAIVideoPrompt(rawPrompt, style string) string {
	if style == "" {
		return rawPrompt + "\n\nGenerate natural, cinematic movement. Silent video only."
	}
	return fmt.Sprintf("%s\n\nVisual style: %s. Generate natural, cinematic movement. Silent video only.", rawPrompt, style)
}

// Generate submits a generation, polls it to completion and downloads the
// video to spec.OutputPath. If spec.ImageURL is set the image is used as the
// first frame.
func (s *XAIVideoService) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	durationSec := int(math.Ceil(spec.DurationSec))
	if durationSec <= 0 {
		durationSec = xaiDefaultDuration
	}
	if durationSec < xaiMinDuration {
		durationSec = xaiMinDuration
	}
	if durationSec > xaiMaxDuration {
		durationSec = xaiMaxDuration
	}

	reqBody := xaiGenerationRequest{
		Prompt:      buildXAIVideoPrompt(spec.Prompt, spec.Style),
		Model:       xaiVideoModel,
		Duration:    durationSec,
		AspectRatio: xaiDefaultAspect,
		Resolution:  xaiDefaultResolution,
	}
	if spec.ImageURL != "" {
		reqBody.Image = &xaiImageInput{URL: spec.ImageURL}
	}

	log.Printf("[xAI Video] Starting video generation (promptLen=%d, hasImage=%v, duration=%ds)",
		len(spec.Prompt), spec.ImageURL != "", durationSec)

	requestID, err := s.submitGeneration(ctx, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to submit video generation: %w", err)
	}

	log.Printf("[xAI Video] Generation submitted, request_id=%s", requestID)

	result, err := s.pollForResult(ctx, requestID)
	if err != nil {
		return nil, err
	}

	log.Printf("[xAI Video] Video ready (duration=%ds), downloading from URL...", result.Video.Duration)

	downloadClient := &http.Client{Timeout: 120 * time.Second}
	if err := downloadToFile(ctx, downloadClient, s.ID(), result.Video.URL, spec.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	return &Result{
		Provider:    s.ID(),
		Kind:        models.ArtifactKindVideo,
		Path:        spec.OutputPath,
		DurationSec: float64(result.Video.Duration),
	}, nil
}

// submitGeneration sends the initial video generation request and returns the request_id.
func (s *XAIVideoService) submitGeneration(ctx context.Context, reqBody xaiGenerationRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/videos/generations", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", rejected(s.ID(), "xAI returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var genResp xaiGenerationResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", invalid(s.ID(), "failed to parse generation response: %v", err)
	}

	if genResp.RequestID == "" {
		return "", invalid(s.ID(), "no request_id in generation response: %s", truncate(string(body), 300))
	}

	return genResp.RequestID, nil
}

// pollForResult polls GET /v1/videos/{request_id} with a fixed delay until the
// video is ready, the generation fails, or the attempt cap is reached.
func (s *XAIVideoService) pollForResult(ctx context.Context, requestID string) (*xaiVideoResult, error) {
	for attempt := 1; attempt <= s.poll.MaxAttempts; attempt++ {
		if err := sleepCtx(ctx, s.poll.Interval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, timedOut(s.ID(), "deadline reached while polling (attempt %d, request_id=%s)", attempt, requestID)
			}
			return nil, fmt.Errorf("video generation cancelled: %w", err)
		}

		result, err := s.getVideoResult(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll video result (attempt %d): %w", attempt, err)
		}

		if result.Video != nil && result.Video.URL != "" {
			log.Printf("[xAI Video] Poll %d: completed (duration=%ds)", attempt, result.Video.Duration)
			return result, nil
		}

		if result.Status == "failed" {
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			return nil, rejected(s.ID(), "video generation failed: %s (request_id=%s)", errMsg, requestID)
		}

		log.Printf("[xAI Video] Poll %d/%d: status=%s", attempt, s.poll.MaxAttempts, result.Status)
	}

	return nil, timedOut(s.ID(), "video not ready after %d polls (request_id=%s)", s.poll.MaxAttempts, requestID)
}

// getVideoResult fetches the current status of a video generation request.
func (s *XAIVideoService) getVideoResult(ctx context.Context, requestID string) (*xaiVideoResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/videos/%s", s.baseURL, requestID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// 202 with {"status":"pending"} while the video is being generated.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, rejected(s.ID(), "xAI returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var result xaiVideoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, invalid(s.ID(), "failed to parse video result: %v", err)
	}

	return &result, nil
}

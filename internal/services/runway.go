package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// RunwayML Gen-2 Service
// Single-shot text-to-video. Clips are hard-capped at 4 seconds per call.
// ---------------------------------------------------------------------------

const (
	runwayBaseURL     = "https://api.runwayml.com/v1"
	runwayModel       = "runway/gen-2"
	runwayFPS         = 24
	runwayMaxDuration = 4
	runwayWidth       = 1024
	runwayHeight      = 576
)

// RunwayMaxDurationSec is the per-call ceiling the selector ranks against.
const RunwayMaxDurationSec = runwayMaxDuration

type RunwayService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ ProviderClient = (*RunwayService)(nil)

func NewRunwayService(apiKey string) *RunwayService {
	return &RunwayService{
		apiKey:     apiKey,
		baseURL:    runwayBaseURL,
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}

func (s *RunwayService) ID() models.ProviderID         { return models.ProviderRunway }
func (s *RunwayService) Capability() models.Capability { return models.CapabilityVideoFromText }

type runwayRequest struct {
	Model string      `json:"model"`
	Input runwayInput `json:"input"`
}

type runwayInput struct {
	Prompt        string  `json:"prompt"`
	NumFrames     int     `json:"num_frames"`
	GuidanceScale float64 `json:"guidance_scale"`
	Height        int     `json:"height"`
	Width         int     `json:"width"`
}

type runwayResponse struct {
	Output struct {
		Video string `json:"video"`
	} `json:"output"`
	Error string `json:"error,omitempty"`
}

// Generate requests a clip of at most 4 seconds and downloads it.
func (s *RunwayService) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	duration := int(math.Ceil(spec.DurationSec))
	if duration <= 0 || duration > runwayMaxDuration {
		duration = runwayMaxDuration
	}

	prompt := spec.Prompt
	if spec.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, spec.Style)
	}

	reqBody := runwayRequest{
		Model: runwayModel,
		Input: runwayInput{
			Prompt:        prompt,
			NumFrames:     duration * runwayFPS,
			GuidanceScale: 20,
			Height:        runwayHeight,
			Width:         runwayWidth,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Runway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/inference", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create Runway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[Runway] Generating video (promptLen=%d, duration=%ds)", len(prompt), duration)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Runway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Runway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, rejected(s.ID(), "Runway returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var out runwayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, invalid(s.ID(), "failed to parse Runway response: %v", err)
	}
	if out.Error != "" {
		return nil, rejected(s.ID(), "Runway error: %s", out.Error)
	}
	if out.Output.Video == "" {
		return nil, invalid(s.ID(), "Runway did not return a video URL")
	}

	if err := downloadToFile(ctx, s.httpClient, s.ID(), out.Output.Video, spec.OutputPath); err != nil {
		return nil, err
	}

	log.Printf("[Runway] Video saved to %s", spec.OutputPath)

	return &Result{
		Provider:    s.ID(),
		Kind:        models.ArtifactKindVideo,
		Path:        spec.OutputPath,
		DurationSec: float64(duration),
	}, nil
}

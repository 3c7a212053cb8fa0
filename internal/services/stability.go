package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// Stability AI Service
// Two-step generation: SDXL text-to-image, then stable-video-diffusion
// image-to-video. Output clips are short (≤4s).
// ---------------------------------------------------------------------------

const (
	stabilityBaseURL     = "https://api.stability.ai/v1/generation"
	stabilityImageEngine = "stable-diffusion-xl-1024-v1-0"
	stabilityMaxDuration = 4
)

// StabilityMaxDurationSec is the per-call ceiling the selector ranks against.
const StabilityMaxDurationSec = stabilityMaxDuration

type StabilityService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ ProviderClient = (*StabilityService)(nil)

func NewStabilityService(apiKey string) *StabilityService {
	return &StabilityService{
		apiKey:     apiKey,
		baseURL:    stabilityBaseURL,
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}

func (s *StabilityService) ID() models.ProviderID         { return models.ProviderStability }
func (s *StabilityService) Capability() models.Capability { return models.CapabilityVideoFromText }

type stabilityTextPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type stabilityImageRequest struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	CFGScale    float64               `json:"cfg_scale"`
	Height      int                   `json:"height"`
	Width       int                   `json:"width"`
	Samples     int                   `json:"samples"`
	Steps       int                   `json:"steps"`
}

type stabilityImageResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

// Generate renders a still from the prompt and animates it.
func (s *StabilityService) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	prompt := spec.Prompt
	if spec.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, spec.Style)
	}

	log.Printf("[Stability] Generating seed image (promptLen=%d)", len(prompt))

	image, err := s.generateImage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	log.Printf("[Stability] Seed image ready (%d bytes), animating...", len(image))

	video, err := s.imageToVideo(ctx, image)
	if err != nil {
		return nil, err
	}

	if err := writeFile(s.ID(), spec.OutputPath, video); err != nil {
		return nil, err
	}

	duration := spec.DurationSec
	if duration <= 0 || duration > stabilityMaxDuration {
		duration = stabilityMaxDuration
	}

	return &Result{
		Provider:    s.ID(),
		Kind:        models.ArtifactKindVideo,
		Path:        spec.OutputPath,
		DurationSec: duration,
	}, nil
}

func (s *StabilityService) generateImage(ctx context.Context, prompt string) ([]byte, error) {
	reqBody := stabilityImageRequest{
		TextPrompts: []stabilityTextPrompt{{Text: prompt, Weight: 1.0}},
		CFGScale:    7,
		Height:      768,
		Width:       1344,
		Samples:     1,
		Steps:       30,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/text-to-image", s.baseURL, stabilityImageEngine)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, rejected(s.ID(), "image generation returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var out stabilityImageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, invalid(s.ID(), "failed to parse image response: %v", err)
	}
	if len(out.Artifacts) == 0 || out.Artifacts[0].Base64 == "" {
		return nil, invalid(s.ID(), "no image artifacts in response")
	}

	image, err := base64.StdEncoding.DecodeString(out.Artifacts[0].Base64)
	if err != nil {
		return nil, invalid(s.ID(), "failed to decode image: %v", err)
	}
	return image, nil
}

func (s *StabilityService) imageToVideo(ctx context.Context, image []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", "seed.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}

	fields := map[string]string{
		"cfg_scale":        "2.5",
		"motion_bucket_id": "40",
		"fps":              "24",
	}
	for _, k := range []string{"cfg_scale", "motion_bucket_id", "fps"} {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	url := fmt.Sprintf("%s/stable-video-diffusion/image-to-video", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create video request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, rejected(s.ID(), "image-to-video returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	return body, nil
}

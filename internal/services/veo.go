package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Uses the Google Gen AI SDK to generate videos from a text prompt, optionally
// seeded with a first frame image.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel  = "veo-3.1-generate-preview"
	veoPollInterval  = 10 * time.Second
	veoMaxPolls      = 30
	veoMaxDuration   = 8
	veoDefaultAspect = "16:9"
)

// VeoMaxDurationSec is the per-call ceiling the selector ranks against.
const VeoMaxDurationSec = veoMaxDuration

// VeoService handles video generation via Google's Veo model.
type VeoService struct {
	apiKey string
	model  string
	poll   PollConfig
	http   *http.Client
}

var _ ProviderClient = (*VeoService)(nil)

// NewVeoService creates a new Veo video generation service.
// apiKey: the Gemini API key (same key works for both Gemini and Veo)
// model: the Veo model to use (empty string defaults to veo-3.1-generate-preview)
func NewVeoService(apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
		poll:   PollConfig{MaxAttempts: veoMaxPolls, Interval: veoPollInterval},
		http:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *VeoService) ID() models.ProviderID         { return models.ProviderVeo }
func (s *VeoService) Capability() models.Capability { return models.CapabilityVideoFromText }

func buildVeoPrompt(rawPrompt, style string) string {
	var b strings.Builder
	b.WriteString(rawPrompt)
	if style != "" {
		fmt.Fprintf(&b, "\n\nVisual style: %s.", style)
	}
	b.WriteString("\n\nMotion direction: subtle, natural, grounded movement. Avoid sudden jerky motion or style changes between frames. No generated dialogue.")
	return b.String()
}

// Generate runs a Veo operation to completion and downloads the first video.
func (s *VeoService) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	durationSec := int32(math.Ceil(spec.DurationSec))
	if durationSec <= 0 || durationSec > veoMaxDuration {
		durationSec = veoMaxDuration
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:     veoDefaultAspect,
		NumberOfVideos:  1,
		DurationSeconds: &durationSec,
	}

	var firstFrame *genai.Image
	if spec.ImageURL != "" {
		data, mimeType, err := s.fetchImage(ctx, spec.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch first frame: %w", err)
		}
		firstFrame = &genai.Image{ImageBytes: data, MIMEType: mimeType}
	}

	enhancedPrompt := buildVeoPrompt(spec.Prompt, spec.Style)
	log.Printf("[Veo] Starting video generation (model=%s, promptLen=%d, duration=%ds, hasImage=%v)",
		s.model, len(enhancedPrompt), durationSec, firstFrame != nil)

	operation, err := client.Models.GenerateVideos(ctx, s.model, enhancedPrompt, firstFrame, config)
	if err != nil {
		return nil, rejected(s.ID(), "failed to start video generation: %v", err)
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	pollCount := 0
	for !operation.Done {
		if pollCount >= s.poll.MaxAttempts {
			return nil, timedOut(s.ID(), "operation not done after %d polls", pollCount)
		}

		if err := sleepCtx(ctx, s.poll.Interval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, timedOut(s.ID(), "deadline reached while polling (polled %d times)", pollCount)
			}
			return nil, fmt.Errorf("video generation cancelled: %w", err)
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	// Operation-level errors (invalid request, quota exceeded)
	if len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, rejected(s.ID(), "video generation operation failed: %s", string(errJSON))
	}

	if operation.Response == nil {
		return nil, invalid(s.ID(), "no response in completed operation after %d polls (operation: %s)", pollCount, operation.Name)
	}

	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, rejected(s.ID(), "video blocked by safety filters: %d filtered, reasons: %s", operation.Response.RAIMediaFilteredCount, reasons)
	}

	if len(operation.Response.GeneratedVideos) == 0 || operation.Response.GeneratedVideos[0].Video == nil {
		return nil, invalid(s.ID(), "no videos in response")
	}

	downloadURI := genai.NewDownloadURIFromVideo(operation.Response.GeneratedVideos[0].Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if err := writeFile(s.ID(), spec.OutputPath, videoBytes); err != nil {
		return nil, err
	}

	log.Printf("[Veo] Video generated successfully (%d bytes, %d polls)", len(videoBytes), pollCount)

	return &Result{
		Provider:    s.ID(),
		Kind:        models.ArtifactKindVideo,
		Path:        spec.OutputPath,
		DurationSec: float64(durationSec),
	}, nil
}

func (s *VeoService) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

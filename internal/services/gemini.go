package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// Gemini text service (REST generateContent)
// Secondary provider for image analysis and script writing.
// ---------------------------------------------------------------------------

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.5-flash"
)

type GeminiService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var (
	_ ScriptWriter  = (*GeminiService)(nil)
	_ ImageAnalyzer = (*GeminiService)(nil)
)

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Gemini API request/response structures
type GeminiGenerateContentRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenerateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []GeminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// AnalyzeImage downloads the image and asks Gemini to describe it.
func (s *GeminiService) AnalyzeImage(ctx context.Context, imageURL, hint string) (string, error) {
	data, mimeType, err := s.downloadImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	instruction := "Describe this image for a video generator: main subject, setting, lighting, mood and any motion it suggests. One short paragraph."
	if hint != "" {
		instruction += " The video should be about: " + hint
	}

	reqBody := GeminiGenerateContentRequest{
		Contents: []GeminiContent{{
			Role: "user",
			Parts: []GeminiPart{
				{Text: instruction},
				{InlineData: &GeminiInlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
			},
		}},
	}

	return s.doGenerateText(ctx, reqBody)
}

// WriteScript asks Gemini for narration sized to the video length.
func (s *GeminiService) WriteScript(ctx context.Context, prompt string, durationSec float64) (string, error) {
	instruction := fmt.Sprintf(`Write voiceover narration of about %d words for this video: %s
Return JSON {"script": "..."} with plain spoken sentences only.`, wordBudget(durationSec), prompt)

	text, err := s.doGenerateText(ctx, GeminiGenerateContentRequest{
		Contents:         []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: instruction}}}},
		GenerationConfig: &GeminiGenerationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", err
	}

	var out scriptResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", invalid(models.ProviderGemini, "failed to parse script: %v", err)
	}
	if strings.TrimSpace(out.Script) == "" {
		return "", invalid(models.ProviderGemini, "script is empty")
	}
	return strings.TrimSpace(out.Script), nil
}

func (s *GeminiService) doGenerateText(ctx context.Context, reqBody GeminiGenerateContentRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.baseURL, geminiModel, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", rejected(models.ProviderGemini, "gemini returned status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 300))
	}

	var geminiResp GeminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return "", invalid(models.ProviderGemini, "failed to decode response: %v", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return "", invalid(models.ProviderGemini, "no candidates in response")
	}

	var textParts []string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	text := strings.TrimSpace(strings.Join(textParts, "\n"))
	if text == "" {
		return "", invalid(models.ProviderGemini, "no text in response")
	}
	return text, nil
}

func (s *GeminiService) downloadImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", rejected(models.ProviderGemini, "image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	log.Printf("[Gemini] Downloaded image for analysis (%d bytes, %s)", len(data), mimeType)
	return data, mimeType, nil
}

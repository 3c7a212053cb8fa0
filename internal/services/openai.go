package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bobarin/reelsmith/internal/models"
)

const (
	openAIScriptModel = "gpt-5-mini"
	openAIVisionModel = "gpt-4o-mini"
	narrationWPS      = 140.0 / 60.0 // narration pace in words per second
)

// ScriptWriter drafts narration for a video.
type ScriptWriter interface {
	WriteScript(ctx context.Context, prompt string, durationSec float64) (string, error)
}

// ImageAnalyzer describes an image so it can seed a video prompt.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageURL, hint string) (string, error)
}

type OpenAIService struct {
	client *openai.Client
}

var (
	_ ScriptWriter  = (*OpenAIService)(nil)
	_ ImageAnalyzer = (*OpenAIService)(nil)
)

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// NewOpenAIServiceWithBaseURL points the client at a compatible endpoint.
func NewOpenAIServiceWithBaseURL(apiKey, baseURL string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIService{client: openai.NewClientWithConfig(cfg)}
}

type scriptResponse struct {
	Script string `json:"script"`
}

// wordBudget is the narration length that fits durationSec at narration pace.
func wordBudget(durationSec float64) int {
	if durationSec <= 0 {
		durationSec = 10
	}
	return int(math.Max(8, math.Round(durationSec*narrationWPS)))
}

// WriteScript asks the model for narration sized to the video length using JSON mode.
func (s *OpenAIService) WriteScript(ctx context.Context, prompt string, durationSec float64) (string, error) {
	words := wordBudget(durationSec)
	systemPrompt := fmt.Sprintf(`You write voiceover narration for short videos.
Return a JSON object {"script": "..."}.
The script must be about %d words so it can be read aloud in %.0f seconds.
Plain spoken sentences only: no stage directions, no speaker labels, no markdown.`, words, durationSec)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openAIScriptModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Video description: " + prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", rejected(models.ProviderOpenAI, "openai request failed: %v", err)
	}

	if len(resp.Choices) == 0 {
		return "", invalid(models.ProviderOpenAI, "no response from openai")
	}

	raw := resp.Choices[0].Message.Content
	var out scriptResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("[OpenAI script] parse failed: %v (raw: %s)", err, truncate(raw, 500))
		return "", invalid(models.ProviderOpenAI, "failed to parse script: %v", err)
	}

	script := strings.TrimSpace(out.Script)
	if script == "" {
		return "", invalid(models.ProviderOpenAI, "script is empty")
	}

	log.Printf("[OpenAI script] Generated %d words (budget %d)", len(strings.Fields(script)), words)
	return script, nil
}

// AnalyzeImage describes the image's subject, setting and mood in one paragraph.
func (s *OpenAIService) AnalyzeImage(ctx context.Context, imageURL, hint string) (string, error) {
	instruction := "Describe this image for a video generator: main subject, setting, lighting, mood and any motion it suggests. One short paragraph."
	if hint != "" {
		instruction += " The video should be about: " + hint
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openAIVisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", rejected(models.ProviderOpenAI, "openai vision request failed: %v", err)
	}

	if len(resp.Choices) == 0 {
		return "", invalid(models.ProviderOpenAI, "no response from openai")
	}

	description := strings.TrimSpace(resp.Choices[0].Message.Content)
	if description == "" {
		return "", invalid(models.ProviderOpenAI, "image description is empty")
	}
	return description, nil
}

// ---------------------------------------------------------------------------
// ProviderClient adapters for text capabilities
// ---------------------------------------------------------------------------

// ScriptProvider exposes a ScriptWriter as a script ProviderClient.
type ScriptProvider struct {
	id     models.ProviderID
	writer ScriptWriter
}

var _ ProviderClient = (*ScriptProvider)(nil)

func NewScriptProvider(id models.ProviderID, writer ScriptWriter) *ScriptProvider {
	return &ScriptProvider{id: id, writer: writer}
}

func (p *ScriptProvider) ID() models.ProviderID         { return p.id }
func (p *ScriptProvider) Capability() models.Capability { return models.CapabilityScript }

func (p *ScriptProvider) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	script, err := p.writer.WriteScript(ctx, spec.Prompt, spec.DurationSec)
	if err != nil {
		return nil, err
	}
	return &Result{Provider: p.id, Kind: models.ArtifactKindText, Text: script}, nil
}

// ImageAnalysisProvider exposes an ImageAnalyzer as an image-analysis ProviderClient.
type ImageAnalysisProvider struct {
	id       models.ProviderID
	analyzer ImageAnalyzer
}

var _ ProviderClient = (*ImageAnalysisProvider)(nil)

func NewImageAnalysisProvider(id models.ProviderID, analyzer ImageAnalyzer) *ImageAnalysisProvider {
	return &ImageAnalysisProvider{id: id, analyzer: analyzer}
}

func (p *ImageAnalysisProvider) ID() models.ProviderID         { return p.id }
func (p *ImageAnalysisProvider) Capability() models.Capability { return models.CapabilityImageAnalysis }

func (p *ImageAnalysisProvider) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	if spec.ImageURL == "" {
		return nil, rejected(p.id, "no image to analyze")
	}
	description, err := p.analyzer.AnalyzeImage(ctx, spec.ImageURL, spec.Prompt)
	if err != nil {
		return nil, err
	}
	return &Result{Provider: p.id, Kind: models.ArtifactKindText, Text: description}, nil
}

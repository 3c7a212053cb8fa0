package services

import (
	"bytes"
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// TTSService is the common interface for text-to-speech providers
// Both ElevenLabs and Cartesia implement this interface. VoiceProvider adapts
// any TTSService to the ProviderClient contract so voice synthesis can run
// through the same fallback chain as video generation.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int
	Format     string // "mp3", "wav", etc.
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text to audio. voiceID overrides the provider's
	// default voice when non-empty.
	GenerateSpeech(ctx context.Context, text, voiceID string) (*TTSResponse, error)
}

// VoiceProvider exposes a TTSService as a voiceover ProviderClient.
type VoiceProvider struct {
	id  models.ProviderID
	tts TTSService
}

var _ ProviderClient = (*VoiceProvider)(nil)

func NewVoiceProvider(id models.ProviderID, tts TTSService) *VoiceProvider {
	return &VoiceProvider{id: id, tts: tts}
}

func (p *VoiceProvider) ID() models.ProviderID         { return p.id }
func (p *VoiceProvider) Capability() models.Capability { return models.CapabilityVoiceover }

// Generate synthesizes spec.Prompt with spec.VoiceReference and writes the
// audio to spec.OutputPath, adding the provider's format extension when the
// path has none.
func (p *VoiceProvider) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	if strings.TrimSpace(spec.Prompt) == "" {
		return nil, rejected(p.id, "empty narration text")
	}

	resp, err := p.tts.GenerateSpeech(ctx, spec.Prompt, spec.VoiceReference)
	if err != nil {
		return nil, err
	}

	path := spec.OutputPath
	if filepath.Ext(path) == "" && resp.Format != "" {
		path += "." + resp.Format
	}

	if err := writeFile(p.id, path, resp.AudioData); err != nil {
		return nil, err
	}

	log.Printf("[Voice] %s synthesized %d bytes (estimated %dms) to %s", p.id, len(resp.AudioData), resp.DurationMs, path)

	return &Result{
		Provider:    p.id,
		Kind:        models.ArtifactKindAudio,
		Path:        path,
		DurationSec: float64(resp.DurationMs) / 1000,
	}, nil
}

// estimateAudioDuration estimates duration based on text length and speed.
// Average narration pace is ~140 words per minute.
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(bytes.Fields([]byte(text)))
	actualWPM := 140.0 * speed

	minutes := float64(words) / actualWPM
	return int(minutes * 60 * 1000)
}

func ttsStatusError(provider models.ProviderID, status int, body []byte) error {
	return rejected(provider, "returned status %d: %s", status, truncate(string(body), 300))
}

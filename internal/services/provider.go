package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// ProviderClient: common contract for every external generation backend.
// Video, voice, image-analysis and script providers all implement it so the
// fallback executor can treat them uniformly.
// ---------------------------------------------------------------------------

// Provider error taxonomy. Providers wrap one of these so callers can classify
// failures with errors.Is.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timed out")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrArtifactInvalid     = errors.New("artifact invalid")
)

// ProviderError tags a provider failure with its taxonomy kind.
type ProviderError struct {
	Provider models.ProviderID
	Kind     error // one of the Err* sentinels above
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func rejected(provider models.ProviderID, format string, args ...interface{}) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderRejected, Err: fmt.Errorf(format, args...)}
}

func invalid(provider models.ProviderID, format string, args ...interface{}) error {
	return &ProviderError{Provider: provider, Kind: ErrArtifactInvalid, Err: fmt.Errorf(format, args...)}
}

func timedOut(provider models.ProviderID, format string, args ...interface{}) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderTimeout, Err: fmt.Errorf(format, args...)}
}

// GenerateSpec is the payload handed to a provider.
type GenerateSpec struct {
	Prompt         string
	DurationSec    float64
	Style          string
	VoiceReference string // voice id for synthesis providers
	ImageURL       string // source image for image analysis / image-to-video
	OutputPath     string // where media providers write their artifact
}

// Result is what a provider produced. Media providers fill Path, text
// providers (script, image analysis) fill Text.
type Result struct {
	Provider    models.ProviderID
	Kind        models.ArtifactKind
	Path        string
	Text        string
	DurationSec float64
	Provenance  []models.ProviderID // set by composite providers, defaults to Provider
	Warnings    []string            // non-fatal degradations, e.g. dropped segments
}

// ProviderClient wraps one external capability.
type ProviderClient interface {
	ID() models.ProviderID
	Capability() models.Capability
	Generate(ctx context.Context, spec GenerateSpec) (*Result, error)
}

// PollConfig bounds remote status polling with a fixed attempt cap and delay.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollConfig matches the 60 x 5s budget used for long-running backends.
var DefaultPollConfig = PollConfig{MaxAttempts: 60, Interval: 5 * time.Second}

func (p PollConfig) normalized() PollConfig {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollConfig.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultPollConfig.Interval
	}
	return p
}

// downloadToFile streams a remote file to outputPath and rejects empty bodies.
func downloadToFile(ctx context.Context, client *http.Client, provider models.ProviderID, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rejected(provider, "download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("failed to write download: %w", err)
	}

	if n == 0 {
		os.Remove(outputPath)
		return invalid(provider, "downloaded file is empty (0 bytes)")
	}

	return nil
}

// writeFile persists generated bytes, rejecting empty payloads.
func writeFile(provider models.ProviderID, outputPath string, data []byte) error {
	if len(data) == 0 {
		return invalid(provider, "provider returned empty payload")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

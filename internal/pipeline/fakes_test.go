package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

// stubProvider is a ProviderClient driven by a function.
type stubProvider struct {
	id         models.ProviderID
	capability models.Capability
	calls      int32
	generate   func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error)
}

func (s *stubProvider) ID() models.ProviderID         { return s.id }
func (s *stubProvider) Capability() models.Capability { return s.capability }

func (s *stubProvider) Generate(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.generate(ctx, spec)
}

func (s *stubProvider) Calls() int { return int(atomic.LoadInt32(&s.calls)) }

// succeeding writes a small file to the requested path.
func succeeding(id models.ProviderID, durationSec float64) *stubProvider {
	return &stubProvider{
		id:         id,
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			if err := writeTestFile(spec.OutputPath, "video:"+string(id)); err != nil {
				return nil, err
			}
			return &services.Result{Provider: id, Kind: models.ArtifactKindVideo, Path: spec.OutputPath, DurationSec: durationSec}, nil
		},
	}
}

func failing(id models.ProviderID, reason string) *stubProvider {
	return &stubProvider{
		id:         id,
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			return nil, &services.ProviderError{Provider: id, Kind: services.ErrProviderRejected, Err: errors.New(reason)}
		},
	}
}

func hanging(id models.ProviderID) *stubProvider {
	return &stubProvider{
		id:         id,
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func panicking(id models.ProviderID) *stubProvider {
	return &stubProvider{
		id:         id,
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			panic("boom")
		},
	}
}

func textProvider(id models.ProviderID, capability models.Capability, text string) *stubProvider {
	return &stubProvider{
		id:         id,
		capability: capability,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			return &services.Result{Provider: id, Kind: models.ArtifactKindText, Text: text}, nil
		},
	}
}

func voiceProvider(id models.ProviderID, durationSec float64) *stubProvider {
	return &stubProvider{
		id:         id,
		capability: models.CapabilityVoiceover,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			if err := writeTestFile(spec.OutputPath, "audio:"+spec.Prompt); err != nil {
				return nil, err
			}
			return &services.Result{Provider: id, Kind: models.ArtifactKindAudio, Path: spec.OutputPath, DurationSec: durationSec}, nil
		},
	}
}

func writeTestFile(path, data string) error {
	if path == "" {
		return fmt.Errorf("no output path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(data), 0644)
}

func register(t *testing.T, r *Registry, p *stubProvider, maxDuration float64) {
	t.Helper()
	require.NoError(t, r.Register(p, ProviderConfig{MaxDurationSec: maxDuration, Configured: true}))
}

// fakeToolkit records calls and writes placeholder outputs.
type fakeToolkit struct {
	mu         sync.Mutex
	filters    []string
	concatIn   [][]string
	mixes      []services.AudioMix
	failFilter map[string]bool
	panicMix   bool
	durations  map[string]float64
}

func newFakeToolkit() *fakeToolkit {
	return &fakeToolkit{failFilter: map[string]bool{}, durations: map[string]float64{}}
}

func (f *fakeToolkit) ApplyFilter(ctx context.Context, inputPath, outputPath, filter string) error {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	fail := f.failFilter[filter]
	f.mu.Unlock()

	if fail {
		return errors.New("ffmpeg filter failed")
	}
	return writeTestFile(outputPath, "filtered")
}

func (f *fakeToolkit) Concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	f.mu.Lock()
	f.concatIn = append(f.concatIn, append([]string(nil), clipPaths...))
	f.mu.Unlock()
	return writeTestFile(outputPath, "concat")
}

func (f *fakeToolkit) MixVoiceover(ctx context.Context, videoPath, audioPath, outputPath string, mix services.AudioMix) error {
	if f.panicMix {
		panic("mixer crashed")
	}
	f.mu.Lock()
	f.mixes = append(f.mixes, mix)
	f.mu.Unlock()
	return writeTestFile(outputPath, "mixed")
}

func (f *fakeToolkit) ProbeDuration(ctx context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.durations[path]; ok {
		return d, nil
	}
	return 0, errors.New("no duration")
}

type recordedAttempt struct {
	provider models.ProviderID
	outcome  string
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []recordedAttempt
}

func (o *recordingObserver) ObserveAttempt(provider models.ProviderID, capability models.Capability, outcome string, elapsed time.Duration) {
	o.mu.Lock()
	o.attempts = append(o.attempts, recordedAttempt{provider, outcome})
	o.mu.Unlock()
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

func TestExecuteFirstSuccessWins(t *testing.T) {
	r := NewRegistry()
	a := failing("a", "quota exceeded")
	b := failing("b", "bad prompt")
	c := succeeding("c", 4)
	d := succeeding("d", 4)
	for _, p := range []*stubProvider{a, b, c, d} {
		register(t, r, p, 0)
	}

	observer := &recordingObserver{}
	exec := NewExecutor(r, time.Second, WithAttemptObserver(observer))
	out := filepath.Join(t.TempDir(), "render.mp4")

	outcome, err := exec.Execute(context.Background(), ProviderRank{"a", "b", "c", "d"}, videoReq("x", 4, ""), out)
	require.NoError(t, err)

	assert.Equal(t, models.ProviderID("c"), outcome.Provider)
	assert.Equal(t, filepath.Join(filepath.Dir(out), "render.c.mp4"), outcome.Result.Path)
	assert.Equal(t, []models.ProviderID{"c"}, outcome.Result.Provenance)
	require.Len(t, outcome.Failures, 2)
	assert.Equal(t, models.ProviderID("a"), outcome.Failures[0].Provider)
	assert.Equal(t, models.ProviderID("b"), outcome.Failures[1].Provider)
	assert.Equal(t, 0, d.Calls(), "no provider after the winner is attempted")

	assert.Equal(t, []recordedAttempt{
		{"a", OutcomeRejected},
		{"b", OutcomeRejected},
		{"c", OutcomeSuccess},
	}, observer.attempts)
}

func TestExecuteExhaustedAggregatesInOrder(t *testing.T) {
	r := NewRegistry()
	register(t, r, failing("a", "quota exceeded"), 0)
	register(t, r, hanging("b"), 0)
	require.NoError(t, r.Register(panicking("c"), ProviderConfig{Configured: true}))

	exec := NewExecutor(r, 30*time.Millisecond)
	_, err := exec.Execute(context.Background(), ProviderRank{"a", "b", "c"}, videoReq("x", 4, ""), filepath.Join(t.TempDir(), "r.mp4"))
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrAllProvidersExhausted))
	assert.True(t, errors.Is(err, services.ErrProviderTimeout))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 3)
	assert.Equal(t, services.ErrProviderRejected, exhausted.Attempts[0].Kind)
	assert.Equal(t, services.ErrProviderTimeout, exhausted.Attempts[1].Kind)
	assert.Equal(t, services.ErrProviderRejected, exhausted.Attempts[2].Kind)

	msg := err.Error()
	assert.Contains(t, msg, "quota exceeded")
	assert.Contains(t, msg, "no result within")
	assert.Contains(t, msg, "panic: boom")
	assert.Less(t, strings.Index(msg, "quota exceeded"), strings.Index(msg, "panic: boom"))
}

func TestExecuteRejectsEmptyArtifacts(t *testing.T) {
	r := NewRegistry()
	empty := &stubProvider{
		id:         "empty",
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			require.NoError(t, writeTestFile(spec.OutputPath, ""))
			return &services.Result{Kind: models.ArtifactKindVideo, Path: spec.OutputPath}, nil
		},
	}
	blankText := textProvider("blank", models.CapabilityVideoFromText, "  ")
	missing := &stubProvider{
		id:         "missing",
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			return &services.Result{Kind: models.ArtifactKindVideo, Path: "/nonexistent/file.mp4"}, nil
		},
	}
	for _, p := range []*stubProvider{empty, blankText, missing} {
		register(t, r, p, 0)
	}

	_, err := NewExecutor(r, time.Second).Execute(context.Background(), ProviderRank{"empty", "blank", "missing"}, videoReq("x", 4, ""), filepath.Join(t.TempDir(), "r.mp4"))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	for _, a := range exhausted.Attempts {
		assert.Equal(t, services.ErrArtifactInvalid, a.Kind, "provider %s", a.Provider)
	}
}

func TestExecuteEmptyRank(t *testing.T) {
	_, err := NewExecutor(NewRegistry(), time.Second).Execute(context.Background(), ProviderRank{}, videoReq("x", 4, ""), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllProvidersExhausted))
	assert.Contains(t, err.Error(), "no eligible provider")
}

func TestExecuteSkipsUnconfigured(t *testing.T) {
	r := NewRegistry()
	unconfigured := succeeding("off", 4)
	require.NoError(t, r.Register(unconfigured, ProviderConfig{Configured: false}))
	register(t, r, succeeding("on", 4), 0)

	outcome, err := NewExecutor(r, time.Second).Execute(context.Background(), ProviderRank{"off", "on"}, videoReq("x", 4, ""), filepath.Join(t.TempDir(), "r.mp4"))
	require.NoError(t, err)

	assert.Equal(t, 0, unconfigured.Calls())
	assert.Equal(t, models.ProviderID("on"), outcome.Provider)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, services.ErrProviderUnavailable, outcome.Failures[0].Kind)
}

func TestExecuteUsesProviderTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(hanging("slow"), ProviderConfig{Configured: true, Timeout: 10 * time.Millisecond}))

	start := time.Now()
	_, err := NewExecutor(r, time.Hour).Execute(context.Background(), ProviderRank{"slow"}, videoReq("x", 4, ""), "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, errors.Is(err, services.ErrProviderTimeout))
}

func TestExecuteAbandonsProviderIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stuck := &stubProvider{
		id:         "stuck",
		capability: models.CapabilityVideoFromText,
		generate: func(ctx context.Context, spec services.GenerateSpec) (*services.Result, error) {
			<-release
			return nil, errors.New("released")
		},
	}
	r := NewRegistry()
	require.NoError(t, r.Register(stuck, ProviderConfig{Configured: true, Timeout: 20 * time.Millisecond}))
	register(t, r, succeeding("next", 4), 0)

	start := time.Now()
	outcome, err := NewExecutor(r, time.Hour).Execute(context.Background(), ProviderRank{"stuck", "next"}, videoReq("x", 4, ""), filepath.Join(t.TempDir(), "r.mp4"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, models.ProviderID("next"), outcome.Provider)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, services.ErrProviderTimeout, outcome.Failures[0].Kind)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	r := NewRegistry()
	p := succeeding("a", 4)
	register(t, r, p, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(r, time.Second).Execute(ctx, ProviderRank{"a"}, videoReq("x", 4, ""), "")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, p.Calls())
}

func TestAttemptPath(t *testing.T) {
	assert.Equal(t, "/w/render.xai.mp4", attemptPath("/w/render.mp4", models.ProviderXAI))
	assert.Equal(t, "/w/narration.elevenlabs", attemptPath("/w/narration", models.ProviderElevenLabs))
	assert.Equal(t, "", attemptPath("", models.ProviderXAI))
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

// Attempt outcomes reported to observers.
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeRejected    = "rejected"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
)

// AttemptObserver is notified after every provider attempt.
type AttemptObserver interface {
	ObserveAttempt(provider models.ProviderID, capability models.Capability, outcome string, elapsed time.Duration)
}

// AttemptError is one failed provider call in a fallback chain.
type AttemptError struct {
	Provider models.ProviderID
	Kind     error // one of the services.Err* sentinels
	Err      error
}

func (e AttemptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// ExhaustedError lists every failed attempt of a chain, in order.
type ExhaustedError struct {
	Capability models.Capability
	Attempts   []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %v: no eligible provider", e.Capability, ErrAllProvidersExhausted)
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("%s: %v: %s", e.Capability, ErrAllProvidersExhausted, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Kind)
	}
	return out
}

// Outcome is the winning provider's result plus the failures before it.
type Outcome struct {
	Provider models.ProviderID
	Result   *services.Result
	Failures []AttemptError
}

// ---------------------------------------------------------------------------
// Executor
// Walks a ProviderRank in order until one provider returns a valid artifact.
// Every call is bounded by a timeout and isolated by panic recovery.
// ---------------------------------------------------------------------------

type Executor struct {
	registry       *Registry
	defaultTimeout time.Duration
	observer       AttemptObserver
}

type ExecutorOption func(*Executor)

func WithAttemptObserver(o AttemptObserver) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

func NewExecutor(registry *Registry, defaultTimeout time.Duration, opts ...ExecutorOption) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	e := &Executor{registry: registry, defaultTimeout: defaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute tries each provider in rank. Media providers write to a per-provider
// variant of outputPath so a partial file from one attempt never masks the
// next. The first valid result wins.
func (e *Executor) Execute(ctx context.Context, rank ProviderRank, req models.CapabilityRequest, outputPath string) (*Outcome, error) {
	var failures []AttemptError

	for _, id := range rank {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fallback for %s cancelled: %w", req.Capability, err)
		}

		client, cfg, ok := e.registry.Lookup(req.Capability, id)
		if !ok || !cfg.Configured || client == nil {
			log.Printf("[Fallback] %s/%s unavailable, skipping", req.Capability, id)
			failures = append(failures, AttemptError{Provider: id, Kind: services.ErrProviderUnavailable})
			e.observe(id, req.Capability, OutcomeUnavailable, 0)
			continue
		}

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = e.defaultTimeout
		}

		spec := services.GenerateSpec{
			Prompt:         req.Prompt,
			DurationSec:    req.DurationSec,
			Style:          req.Style,
			VoiceReference: req.VoiceReference,
			ImageURL:       req.ImageURL,
			OutputPath:     attemptPath(outputPath, id),
		}

		start := time.Now()
		result, err := e.attempt(ctx, client, spec, timeout)
		elapsed := time.Since(start)

		if err == nil {
			err = validateResult(id, result)
		}

		if err != nil {
			kind := classify(err)
			log.Printf("[Fallback] %s/%s failed after %s: %v", req.Capability, id, elapsed.Round(time.Millisecond), err)
			failures = append(failures, AttemptError{Provider: id, Kind: kind, Err: err})
			e.observe(id, req.Capability, outcomeFor(kind), elapsed)
			continue
		}

		if result.Provider == "" {
			result.Provider = id
		}
		if len(result.Provenance) == 0 {
			result.Provenance = []models.ProviderID{id}
		}

		log.Printf("[Fallback] %s/%s succeeded in %s after %d failed attempts", req.Capability, id, elapsed.Round(time.Millisecond), len(failures))
		e.observe(id, req.Capability, OutcomeSuccess, elapsed)
		return &Outcome{Provider: id, Result: result, Failures: failures}, nil
	}

	return nil, &ExhaustedError{Capability: req.Capability, Attempts: failures}
}

type attemptResult struct {
	result *services.Result
	err    error
}

// attempt runs one provider call under its timeout and converts a panic into
// a rejection. A provider that ignores its context is abandoned at the
// deadline; its goroutine finishes into a buffered channel nobody reads.
func (e *Executor) attempt(ctx context.Context, client services.ProviderClient, spec services.GenerateSpec, timeout time.Duration) (*services.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: &services.ProviderError{
					Provider: client.ID(),
					Kind:     services.ErrProviderRejected,
					Err:      fmt.Errorf("panic: %v", r),
				}}
			}
		}()
		result, err := client.Generate(callCtx, spec)
		done <- attemptResult{result: result, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.err = timeoutError(client.ID(), timeout, res.err)
		}
		return res.result, res.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Printf("[Fallback] %s still running at its %s deadline, abandoning it", client.ID(), timeout)
		return nil, timeoutError(client.ID(), timeout, callCtx.Err())
	}
}

func timeoutError(id models.ProviderID, timeout time.Duration, err error) error {
	return &services.ProviderError{
		Provider: id,
		Kind:     services.ErrProviderTimeout,
		Err:      fmt.Errorf("no result within %s: %w", timeout, err),
	}
}

// validateResult rejects empty artifacts that came back without an error.
func validateResult(id models.ProviderID, result *services.Result) error {
	if result == nil {
		return &services.ProviderError{Provider: id, Kind: services.ErrArtifactInvalid, Err: errors.New("provider returned no result")}
	}

	if result.Kind == models.ArtifactKindText {
		if strings.TrimSpace(result.Text) == "" {
			return &services.ProviderError{Provider: id, Kind: services.ErrArtifactInvalid, Err: errors.New("empty text result")}
		}
		return nil
	}

	if result.Path == "" {
		return &services.ProviderError{Provider: id, Kind: services.ErrArtifactInvalid, Err: errors.New("result has no file path")}
	}
	info, err := os.Stat(result.Path)
	if err != nil {
		return &services.ProviderError{Provider: id, Kind: services.ErrArtifactInvalid, Err: fmt.Errorf("result file missing: %w", err)}
	}
	if info.Size() == 0 {
		return &services.ProviderError{Provider: id, Kind: services.ErrArtifactInvalid, Err: fmt.Errorf("result file %s is empty", filepath.Base(result.Path))}
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, services.ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return services.ErrProviderTimeout
	case errors.Is(err, services.ErrProviderUnavailable):
		return services.ErrProviderUnavailable
	case errors.Is(err, services.ErrArtifactInvalid):
		return services.ErrArtifactInvalid
	default:
		return services.ErrProviderRejected
	}
}

func outcomeFor(kind error) string {
	switch kind {
	case services.ErrProviderTimeout:
		return OutcomeTimeout
	case services.ErrArtifactInvalid:
		return OutcomeInvalid
	case services.ErrProviderUnavailable:
		return OutcomeUnavailable
	default:
		return OutcomeRejected
	}
}

func (e *Executor) observe(id models.ProviderID, capability models.Capability, outcome string, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.ObserveAttempt(id, capability, outcome, elapsed)
	}
}

// attemptPath inserts the provider id before the extension:
// /work/job/render.mp4 -> /work/job/render.runway.mp4
func attemptPath(outputPath string, id models.ProviderID) string {
	if outputPath == "" {
		return ""
	}
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "." + string(id) + ext
}

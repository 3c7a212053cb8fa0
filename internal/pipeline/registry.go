package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/reelsmith/internal/models"
	"github.com/bobarin/reelsmith/internal/services"
)

var (
	ErrAllProvidersExhausted   = errors.New("all providers exhausted")
	ErrSegmentGenerationFailed = errors.New("segment generation failed")
	ErrEnhancementFailed       = errors.New("enhancement failed")
	ErrEmptyPrompt             = errors.New("prompt has no usable text")
)

// ProviderRank is an ordered list of providers to attempt. It may be empty.
type ProviderRank []models.ProviderID

// ProviderConfig is the static description of one registered provider.
type ProviderConfig struct {
	ID         models.ProviderID
	Capability models.Capability
	// MaxDurationSec is the hard per-call ceiling. 0 means any duration.
	MaxDurationSec float64
	// Configured is false when credentials are missing. Such providers stay
	// listed but are never invoked.
	Configured bool
	// Recursive marks providers that re-enter the pipeline themselves, such
	// as hybrid assembly. They are never used to generate segments.
	Recursive bool
	// Timeout bounds one call. 0 uses the executor default.
	Timeout time.Duration
}

type registryKey struct {
	capability models.Capability
	id         models.ProviderID
}

type registryEntry struct {
	config ProviderConfig
	client services.ProviderClient
}

// Registry is the set of providers per capability, in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []registryEntry
	index   map[registryKey]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[registryKey]int)}
}

// Register adds a provider. ID and Capability default to the client's own.
// client may be nil for an unconfigured provider.
func (r *Registry) Register(client services.ProviderClient, cfg ProviderConfig) error {
	if client != nil {
		if cfg.ID == "" {
			cfg.ID = client.ID()
		}
		if cfg.Capability == "" {
			cfg.Capability = client.Capability()
		}
	}
	if cfg.ID == "" || cfg.Capability == "" {
		return fmt.Errorf("provider registration needs an id and a capability")
	}
	if client == nil && cfg.Configured {
		return fmt.Errorf("provider %s/%s is configured but has no client", cfg.Capability, cfg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{cfg.Capability, cfg.ID}
	if _, exists := r.index[key]; exists {
		return fmt.Errorf("provider %s/%s already registered", cfg.Capability, cfg.ID)
	}
	r.index[key] = len(r.entries)
	r.entries = append(r.entries, registryEntry{config: cfg, client: client})
	return nil
}

// Lookup returns the client and config of a provider for a capability.
func (r *Registry) Lookup(capability models.Capability, id models.ProviderID) (services.ProviderClient, ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[registryKey{capability, id}]
	if !ok {
		return nil, ProviderConfig{}, false
	}
	e := r.entries[i]
	return e.client, e.config, true
}

// Providers lists every provider of a capability in registration order.
func (r *Registry) Providers(capability models.Capability) []ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ProviderConfig
	for _, e := range r.entries {
		if e.config.Capability == capability {
			out = append(out, e.config)
		}
	}
	return out
}

// Infos describes every registered provider for the listing endpoint.
func (r *Registry) Infos() []models.ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ProviderInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, models.ProviderInfo{
			ID:             e.config.ID,
			Capability:     e.config.Capability,
			Configured:     e.config.Configured,
			Recursive:      e.config.Recursive,
			MaxDurationSec: e.config.MaxDurationSec,
		})
	}
	return out
}

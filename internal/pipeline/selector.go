package pipeline

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
)

// SuitabilityTable orders providers per capability and content category.
// Categories missing from a capability fall back to its generic entry.
type SuitabilityTable map[models.Capability]map[models.ContentCategory][]models.ProviderID

// DefaultSuitabilityTable is the compiled-in ordering. The head of each video
// row is the category's preferred source.
func DefaultSuitabilityTable() SuitabilityTable {
	video := func(head models.ProviderID, rest ...models.ProviderID) []models.ProviderID {
		return append([]models.ProviderID{head}, rest...)
	}

	return SuitabilityTable{
		models.CapabilityVideoFromText: {
			models.CategoryCommercial: video(content.SuggestParameters(models.CategoryCommercial).PreferredSource,
				models.ProviderXAI, models.ProviderVeo, models.ProviderRunway, models.ProviderStability, models.ProviderPexels),
			models.CategoryTestimonial: video(content.SuggestParameters(models.CategoryTestimonial).PreferredSource,
				models.ProviderHybrid, models.ProviderXAI, models.ProviderVeo, models.ProviderStability, models.ProviderPexels),
			models.CategoryCinematic: video(content.SuggestParameters(models.CategoryCinematic).PreferredSource,
				models.ProviderVeo, models.ProviderXAI, models.ProviderRunway, models.ProviderHybrid, models.ProviderPexels),
			models.CategoryStock: video(content.SuggestParameters(models.CategoryStock).PreferredSource,
				models.ProviderHybrid, models.ProviderXAI, models.ProviderVeo, models.ProviderRunway, models.ProviderStability),
			models.CategoryGeneric: video(content.SuggestParameters(models.CategoryGeneric).PreferredSource,
				models.ProviderRunway, models.ProviderStability, models.ProviderPexels, models.ProviderXAI, models.ProviderVeo),
		},
		models.CapabilityVoiceover: {
			models.CategoryGeneric: {models.ProviderElevenLabs, models.ProviderCartesia},
		},
		models.CapabilityImageAnalysis: {
			models.CategoryGeneric: {models.ProviderOpenAI, models.ProviderGemini},
		},
		models.CapabilityScript: {
			models.CategoryGeneric: {models.ProviderOpenAI, models.ProviderGemini},
		},
	}
}

// LoadSuitabilityTable reads a YAML override of the default table:
//
//	video_from_text:
//	  commercial: [hybrid, xai, pexels]
//	voiceover:
//	  generic: [cartesia, elevenlabs]
//
// Capabilities absent from the file keep their default rows.
func LoadSuitabilityTable(path string) (SuitabilityTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suitability table: %w", err)
	}

	var override SuitabilityTable
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse suitability table: %w", err)
	}

	table := DefaultSuitabilityTable()
	for capability, rows := range override {
		if len(rows) == 0 {
			continue
		}
		table[capability] = rows
	}
	return table, nil
}

func (t SuitabilityTable) row(capability models.Capability, category models.ContentCategory) []models.ProviderID {
	rows := t[capability]
	if row, ok := rows[category]; ok {
		return row
	}
	return rows[models.CategoryGeneric]
}

// hintPromotions are checked in order; the first matching hint wins.
var hintPromotions = []struct {
	matches  func(content.Hints) bool
	provider models.ProviderID
}{
	{func(h content.Hints) bool { return h.Animation }, models.ProviderRunway},
	{func(h content.Hints) bool { return h.Realistic }, models.ProviderPexels},
	{func(h content.Hints) bool { return h.Creative }, models.ProviderStability},
}

// ---------------------------------------------------------------------------
// Selector
// Produces the ordered provider chain for a capability request. Ordering is
// a pure function of the registry, the table and the request.
// ---------------------------------------------------------------------------

type Selector struct {
	registry *Registry
	table    SuitabilityTable
}

func NewSelector(registry *Registry, table SuitabilityTable) *Selector {
	if table == nil {
		table = DefaultSuitabilityTable()
	}
	return &Selector{registry: registry, table: table}
}

// Rank orders the configured providers for req. An override naming a known
// provider is exclusive; an unknown override name is ignored.
func (s *Selector) Rank(req models.CapabilityRequest, signals content.Signals) ProviderRank {
	if req.Override != "" {
		if _, cfg, ok := s.registry.Lookup(req.Capability, req.Override); ok {
			if !cfg.Configured {
				log.Printf("[Selector] Override %s for %s is not configured, no providers eligible", req.Override, req.Capability)
				return ProviderRank{}
			}
			return ProviderRank{req.Override}
		}
		log.Printf("[Selector] Ignoring unknown override %q for %s", req.Override, req.Capability)
	}

	var eligible []ProviderConfig
	for _, cfg := range s.registry.Providers(req.Capability) {
		if cfg.Configured {
			eligible = append(eligible, cfg)
		}
	}
	if len(eligible) == 0 {
		return ProviderRank{}
	}

	byID := make(map[models.ProviderID]ProviderConfig, len(eligible))
	for _, cfg := range eligible {
		byID[cfg.ID] = cfg
	}

	// Table order first.
	seen := make(map[models.ProviderID]bool, len(eligible))
	var ordered []ProviderConfig
	for _, id := range s.table.row(req.Capability, signals.Category) {
		if cfg, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, cfg)
			seen[id] = true
		}
	}

	// Keyword hint promotes one provider to the head.
	if req.Capability == models.CapabilityVideoFromText {
		for _, p := range hintPromotions {
			if !p.matches(signals.Hints) {
				continue
			}
			if i := indexOf(ordered, p.provider); i > 0 {
				promoted := ordered[i]
				copy(ordered[1:i+1], ordered[:i])
				ordered[0] = promoted
			}
			break
		}
	}

	// Stable partition: providers that can produce the requested duration in
	// one call go before those whose ceiling is too short.
	if req.DurationSec > 0 {
		fits := make([]ProviderConfig, 0, len(ordered))
		var short []ProviderConfig
		for _, cfg := range ordered {
			if cfg.MaxDurationSec > 0 && cfg.MaxDurationSec < req.DurationSec {
				short = append(short, cfg)
			} else {
				fits = append(fits, cfg)
			}
		}
		ordered = append(fits, short...)
	}

	// Eligible providers the table does not mention, in registration order.
	for _, cfg := range eligible {
		if !seen[cfg.ID] {
			ordered = append(ordered, cfg)
			seen[cfg.ID] = true
		}
	}

	rank := make(ProviderRank, len(ordered))
	for i, cfg := range ordered {
		rank[i] = cfg.ID
	}
	return rank
}

func indexOf(configs []ProviderConfig, id models.ProviderID) int {
	for i, cfg := range configs {
		if cfg.ID == id {
			return i
		}
	}
	return -1
}

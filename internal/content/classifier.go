package content

import (
	"regexp"
	"strings"

	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// Content classifier
// Pure keyword heuristics over the prompt text. No I/O, safe for concurrent use.
// ---------------------------------------------------------------------------

// Signals is what the selector and planner learn from a prompt.
type Signals struct {
	Category models.ContentCategory             `json:"category"`
	Scores   map[models.ContentCategory]float64 `json:"scores"`
	Hints    Hints                              `json:"hints"`
	Duration float64                            `json:"duration_sec"`
}

// Hints are keyword flags that promote a single provider to the head of a rank.
type Hints struct {
	Animation bool `json:"animation"` // 3d / animation / cartoon
	Realistic bool `json:"realistic"` // real footage / documentary
	Creative  bool `json:"creative"`  // artistic / abstract / surreal
}

// categoryOrder fixes tie-breaking so classification is deterministic.
var categoryOrder = []models.ContentCategory{
	models.CategoryCommercial,
	models.CategoryTestimonial,
	models.CategoryCinematic,
	models.CategoryStock,
}

var categoryKeywords = map[models.ContentCategory][]string{
	models.CategoryCommercial: {
		"advertisement", "ad ", "commercial", "product", "brand", "promotional",
		"marketing", "showcase", "sell", "promote", "business", "service",
	},
	models.CategoryTestimonial: {
		"testimonial", "talking head", "interview", "speaking", "person talking",
		"face to camera", "spokesperson", "presenter", "monologue", "speaking directly",
	},
	models.CategoryCinematic: {
		"cinematic", "film", "movie", "scene", "dramatic", "storytelling", "narrative",
		"aesthetic", "artistic", "atmosphere", "mood", "visual story", "epic",
	},
	models.CategoryStock: {
		"stock footage", "b-roll", "background video", "generic", "simple",
		"everyday", "natural", "real life", "documentary style",
	},
}

var (
	personBoostKeywords  = []string{"face", "person", "people", "talking", "speaking"}
	productBoostKeywords = []string{"product", "service", "buy", "purchase", "sale"}

	animationKeywords = []string{"3d", "animation", "animated", "cartoon"}
	realisticKeywords = []string{"realistic", "real footage", "documentary", "real life", "stock"}
	creativeKeywords  = []string{"artistic", "creative", "abstract", "surreal", "painting"}
)

// Classify scores the prompt against each category. Scores are keyword hits
// divided by 4 and capped at 1. The category is the highest score, or generic
// when nothing matched.
func Classify(prompt string) Signals {
	lower := strings.ToLower(prompt)

	scores := make(map[models.ContentCategory]float64, len(categoryOrder))
	for _, category := range categoryOrder {
		hits := 0
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		scores[category] = minFloat(float64(hits)/4, 1.0)
	}

	if containsAny(lower, personBoostKeywords) {
		scores[models.CategoryTestimonial] = minFloat(scores[models.CategoryTestimonial]+0.3, 1.0)
	}
	if containsAny(lower, productBoostKeywords) {
		scores[models.CategoryCommercial] = minFloat(scores[models.CategoryCommercial]+0.3, 1.0)
	}

	category := models.CategoryGeneric
	best := 0.0
	for _, c := range categoryOrder {
		if scores[c] > best {
			best = scores[c]
			category = c
		}
	}

	return Signals{
		Category: category,
		Scores:   scores,
		Hints: Hints{
			Animation: containsAny(lower, animationKeywords),
			Realistic: containsAny(lower, realisticKeywords),
			Creative:  containsAny(lower, creativeKeywords),
		},
	}
}

// ParseCategory maps a free-form category name, falling back to generic.
func ParseCategory(name string) models.ContentCategory {
	switch c := models.ContentCategory(strings.ToLower(strings.TrimSpace(name))); c {
	case models.CategoryTestimonial, models.CategoryCommercial, models.CategoryCinematic, models.CategoryStock:
		return c
	default:
		return models.CategoryGeneric
	}
}

// Parameters are the suggested defaults for a category.
type Parameters struct {
	DurationSec     float64
	PreferredSource models.ProviderID
	Style           string
	AspectRatio     string
}

// SuggestParameters returns defaults for a detected category.
func SuggestParameters(category models.ContentCategory) Parameters {
	switch category {
	case models.CategoryCommercial:
		return Parameters{DurationSec: 15, PreferredSource: models.ProviderHybrid, Style: "polished", AspectRatio: "16:9"}
	case models.CategoryTestimonial:
		return Parameters{DurationSec: 20, PreferredSource: models.ProviderRunway, Style: "realistic", AspectRatio: "9:16"}
	case models.CategoryCinematic:
		return Parameters{DurationSec: 10, PreferredSource: models.ProviderStability, Style: "cinematic", AspectRatio: "21:9"}
	case models.CategoryStock:
		return Parameters{DurationSec: 8, PreferredSource: models.ProviderPexels, Style: "natural", AspectRatio: "16:9"}
	default:
		return Parameters{DurationSec: 10, PreferredSource: models.ProviderHybrid, Style: "balanced", AspectRatio: "16:9"}
	}
}

var (
	boldPattern    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	headerPattern  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	listPattern    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	spacePattern   = regexp.MustCompile(`\s+`)
	specialPattern = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s.,!?:;()\-'"]+`)
)

// Sanitize strips markdown and unusual characters from a prompt before it is
// sent to a provider. Letters and digits of any script are kept.
func Sanitize(prompt string) string {
	if prompt == "" {
		return ""
	}
	prompt = boldPattern.ReplaceAllString(prompt, "$1")
	prompt = headerPattern.ReplaceAllString(prompt, "")
	prompt = listPattern.ReplaceAllString(prompt, "")
	prompt = spacePattern.ReplaceAllString(prompt, " ")
	prompt = specialPattern.ReplaceAllString(prompt, " ")
	prompt = spacePattern.ReplaceAllString(prompt, " ")
	return strings.TrimSpace(prompt)
}

var scenePattern = regexp.MustCompile(`Scene\s*\d+\s*:\s*([^.]+)`)

// ExtractScenes returns the text of every "Scene N: ..." marker in order.
func ExtractScenes(prompt string) []string {
	matches := scenePattern.FindAllStringSubmatch(prompt, -1)
	scenes := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m[1]); s != "" {
			scenes = append(scenes, s)
		}
	}
	return scenes
}

// Industry buckets used to pick default testimonial scenes.
const (
	IndustryHVAC         = "hvac"
	IndustryConstruction = "construction"
	IndustryRealEstate   = "real estate"
	IndustryBusiness     = "business"
)

// DetectIndustry guesses the industry a testimonial prompt is about.
func DetectIndustry(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case containsAny(lower, []string{"hvac", "air conditioning", "heating", "furnace"}):
		return IndustryHVAC
	case containsAny(lower, []string{"construction", "contractor", "remodel", "renovation"}):
		return IndustryConstruction
	case containsAny(lower, []string{"real estate", "realtor", "property", "home sale"}):
		return IndustryRealEstate
	default:
		return IndustryBusiness
	}
}

// DefaultScenes returns fallback B-roll scenes for an industry.
func DefaultScenes(industry string) []string {
	switch industry {
	case IndustryHVAC:
		return []string{
			"technician servicing an air conditioning unit",
			"family relaxing comfortably at home",
			"modern thermostat on a living room wall",
		}
	case IndustryConstruction:
		return []string{
			"construction crew working on a building site",
			"finished home renovation interior",
			"contractor reviewing blueprints with a client",
		}
	case IndustryRealEstate:
		return []string{
			"exterior of a modern suburban house",
			"bright open living room interior",
			"agent handing keys to happy homeowners",
		}
	default:
		return []string{
			"professional team collaborating in an office",
			"handshake between business partners",
			"satisfied customer smiling",
		}
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

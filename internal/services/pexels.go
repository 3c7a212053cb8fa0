package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobarin/reelsmith/internal/content"
	"github.com/bobarin/reelsmith/internal/models"
)

// ---------------------------------------------------------------------------
// Pexels Stock Footage Service
// Searches the Pexels video library and downloads the first suitable file.
// Tolerates any requested duration, so it is the usual hybrid segment source.
// ---------------------------------------------------------------------------

const (
	pexelsBaseURL      = "https://api.pexels.com"
	pexelsPerPage      = 5
	pexelsMinWidth     = 1280
	pexelsMaxFileBytes = 10 * 1024 * 1024
	pexelsDefaultQuery = "business presentation"
)

var pexelsFallbackTerms = []string{"business", "professional", "technology", "office"}

type PexelsService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ ProviderClient = (*PexelsService)(nil)

func NewPexelsService(apiKey string) *PexelsService {
	return &PexelsService{
		apiKey:     apiKey,
		baseURL:    pexelsBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *PexelsService) ID() models.ProviderID         { return models.ProviderPexels }
func (s *PexelsService) Capability() models.Capability { return models.CapabilityVideoFromText }

type pexelsSearchResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

type pexelsVideo struct {
	ID         int               `json:"id"`
	Duration   int               `json:"duration"`
	VideoFiles []pexelsVideoFile `json:"video_files"`
}

type pexelsVideoFile struct {
	Link     string `json:"link"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	FileSize int64  `json:"file_size"`
}

// OptimizeQuery turns a generation prompt into a stock search query.
func OptimizeQuery(prompt string) string {
	query := content.Sanitize(prompt)
	if query == "" {
		return pexelsDefaultQuery
	}

	words := strings.Fields(query)
	switch content.Classify(query).Category {
	case models.CategoryTestimonial:
		return "professional person talking interview testimonial"
	case models.CategoryCommercial:
		var terms []string
		for _, w := range words {
			if len(w) > 3 && !isStopWord(w) {
				terms = append(terms, w)
			}
			if len(terms) == 3 {
				break
			}
		}
		if len(terms) == 0 {
			return "professional business advertisement"
		}
		return strings.Join(terms, " ") + " advertisement professional"
	case models.CategoryCinematic:
		if len(words) > 3 {
			return "cinematic scene " + words[len(words)-3]
		}
		return "cinematic scene " + query
	default:
		if len(words) > 6 {
			return strings.Join(words[:6], " ")
		}
		return query
	}
}

func isStopWord(w string) bool {
	switch strings.ToLower(w) {
	case "the", "and", "with", "this", "that", "these", "those", "from", "into", "your":
		return true
	}
	return false
}

// Generate searches for footage matching the prompt and downloads it.
func (s *PexelsService) Generate(ctx context.Context, spec GenerateSpec) (*Result, error) {
	query := OptimizeQuery(spec.Prompt)
	log.Printf("[Pexels] Searching stock footage (query=%q)", query)

	videos, err := s.search(ctx, query)
	if err != nil || len(videos) == 0 {
		if err != nil {
			log.Printf("[Pexels] Search for %q failed: %v, trying fallback terms", query, err)
		}
		for _, term := range pexelsFallbackTerms {
			videos, err = s.search(ctx, term)
			if err == nil && len(videos) > 0 {
				log.Printf("[Pexels] Fallback term %q returned %d videos", term, len(videos))
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, rejected(s.ID(), "no suitable stock videos found for %q", query)
	}

	video, file, ok := selectPexelsFile(videos)
	if !ok {
		return nil, rejected(s.ID(), "no suitable video files found (mp4, >=%dpx wide, <10MB)", pexelsMinWidth)
	}

	if err := downloadToFile(ctx, s.httpClient, s.ID(), file.Link, spec.OutputPath); err != nil {
		return nil, err
	}

	log.Printf("[Pexels] Downloaded video %d (%ds) to %s", video.ID, video.Duration, spec.OutputPath)

	return &Result{
		Provider:    s.ID(),
		Kind:        models.ArtifactKindVideo,
		Path:        spec.OutputPath,
		DurationSec: float64(video.Duration),
	}, nil
}

func (s *PexelsService) search(ctx context.Context, query string) ([]pexelsVideo, error) {
	endpoint := fmt.Sprintf("%s/videos/search?query=%s&per_page=%d", s.baseURL, url.QueryEscape(query), pexelsPerPage)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, rejected(s.ID(), "search returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var out pexelsSearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, invalid(s.ID(), "failed to parse search response: %v", err)
	}
	return out.Videos, nil
}

// selectPexelsFile picks the first mp4 rendition that is HD and under 10MB.
func selectPexelsFile(videos []pexelsVideo) (pexelsVideo, pexelsVideoFile, bool) {
	for _, v := range videos {
		for _, f := range v.VideoFiles {
			if f.FileType == "video/mp4" && f.Width >= pexelsMinWidth && f.FileSize < pexelsMaxFileBytes && f.Link != "" {
				return v, f, true
			}
		}
	}
	return pexelsVideo{}, pexelsVideoFile{}, false
}

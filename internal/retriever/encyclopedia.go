package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"thorlearn/internal/logging"
)

// EncyclopediaAdapter queries a structured encyclopedia summary endpoint.
// It yields at most one high-confidence candidate per query but that candidate
// is the baseline the engine results are ranked against.
type EncyclopediaAdapter struct {
	BaseURL    string
	UserAgent  string
	client     *http.Client
	confidence float64
}

// NewEncyclopediaAdapter creates the adapter against the default public
// summary endpoint. Tests override BaseURL.
func NewEncyclopediaAdapter(client *http.Client, userAgent string) *EncyclopediaAdapter {
	return &EncyclopediaAdapter{
		BaseURL:    "https://en.wikipedia.org/api/rest_v1/page/summary",
		UserAgent:  userAgent,
		client:     client,
		confidence: 0.9,
	}
}

func (a *EncyclopediaAdapter) Name() string        { return AdapterEncyclopedia }
func (a *EncyclopediaAdapter) Confidence() float64 { return a.confidence }

// encyclopediaSummary is the wire shape of the summary endpoint.
type encyclopediaSummary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	Timestamp   string `json:"timestamp"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (a *EncyclopediaAdapter) Search(ctx context.Context, query string, n int) ([]RawCandidate, error) {
	page := strings.ReplaceAll(strings.TrimSpace(query), " ", "_")
	endpoint := a.BaseURL + "/" + url.PathEscape(page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := fetch(a.client, req, a.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("encyclopedia fetch: %w", err)
	}

	var summary encyclopediaSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("encyclopedia decode: %w", err)
	}
	if strings.TrimSpace(summary.Extract) == "" {
		return nil, nil
	}

	cand := RawCandidate{
		Title:      summary.Title,
		Content:    summary.Extract,
		URL:        summary.ContentURLs.Desktop.Page,
		Adapter:    a.Name(),
		Confidence: a.confidence,
	}
	if summary.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, summary.Timestamp); err == nil {
			cand.PublishedAt = ts
		}
	}

	logging.RetrieverDebug("encyclopedia: 1 candidate for %q", query)
	return []RawCandidate{cand}, nil
}

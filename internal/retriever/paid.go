package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"thorlearn/internal/logging"
)

// BraveAdapter queries the Brave Search API. Enabled only when an API key is
// configured.
type BraveAdapter struct {
	BaseURL    string
	apiKey     string
	client     *http.Client
	confidence float64
}

func NewBraveAdapter(client *http.Client, apiKey string) *BraveAdapter {
	return &BraveAdapter{
		BaseURL:    "https://api.search.brave.com/res/v1/web/search",
		apiKey:     apiKey,
		client:     client,
		confidence: 0.8,
	}
}

func (a *BraveAdapter) Name() string        { return AdapterBrave }
func (a *BraveAdapter) Confidence() float64 { return a.confidence }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	} `json:"web"`
}

func (a *BraveAdapter) Search(ctx context.Context, query string, n int) ([]RawCandidate, error) {
	endpoint := a.BaseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", a.apiKey)

	body, err := fetch(a.client, req, "")
	if err != nil {
		return nil, fmt.Errorf("brave fetch: %w", err)
	}

	var decoded braveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("brave decode: %w", err)
	}

	var candidates []RawCandidate
	for _, r := range decoded.Web.Results {
		if len(candidates) >= n {
			break
		}
		if r.Title == "" || r.Description == "" {
			continue
		}
		cand := RawCandidate{
			Title:      r.Title,
			Content:    r.Description,
			URL:        r.URL,
			Adapter:    a.Name(),
			Confidence: a.confidence,
			Index:      len(candidates),
		}
		if r.PageAge != "" {
			if ts, err := time.Parse(time.RFC3339, r.PageAge); err == nil {
				cand.PublishedAt = ts
			}
		}
		candidates = append(candidates, cand)
	}

	logging.RetrieverDebug("brave: %d candidates for %q", len(candidates), query)
	return candidates, nil
}

// SerpAPIAdapter queries serpapi.com's aggregated search API. Enabled only
// when an API key is configured.
type SerpAPIAdapter struct {
	BaseURL    string
	apiKey     string
	client     *http.Client
	confidence float64
}

func NewSerpAPIAdapter(client *http.Client, apiKey string) *SerpAPIAdapter {
	return &SerpAPIAdapter{
		BaseURL:    "https://serpapi.com/search.json",
		apiKey:     apiKey,
		client:     client,
		confidence: 0.8,
	}
}

func (a *SerpAPIAdapter) Name() string        { return AdapterSerpAPI }
func (a *SerpAPIAdapter) Confidence() float64 { return a.confidence }

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

func (a *SerpAPIAdapter) Search(ctx context.Context, query string, n int) ([]RawCandidate, error) {
	endpoint := a.BaseURL + "?engine=google&q=" + url.QueryEscape(query) + "&api_key=" + url.QueryEscape(a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := fetch(a.client, req, "")
	if err != nil {
		return nil, fmt.Errorf("serpapi fetch: %w", err)
	}

	var decoded serpAPIResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("serpapi decode: %w", err)
	}

	var candidates []RawCandidate
	for _, r := range decoded.OrganicResults {
		if len(candidates) >= n {
			break
		}
		if r.Title == "" || r.Snippet == "" {
			continue
		}
		candidates = append(candidates, RawCandidate{
			Title:      r.Title,
			Content:    r.Snippet,
			URL:        r.Link,
			Adapter:    a.Name(),
			Confidence: a.confidence,
			Index:      len(candidates),
		})
	}

	logging.RetrieverDebug("serpapi: %d candidates for %q", len(candidates), query)
	return candidates, nil
}

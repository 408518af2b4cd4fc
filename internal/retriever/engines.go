package retriever

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"thorlearn/internal/logging"
)

// htmlEngine scrapes a search engine's result page with CSS selectors. Engine
// A and Engine B share this implementation and differ only in their selector
// sets and URL shape.
type htmlEngine struct {
	name       string
	baseURL    string
	queryParam string

	resultSel  string
	titleSel   string
	snippetSel string

	UserAgent  string
	client     *http.Client
	confidence float64
}

// NewEngineA scrapes the html.duckduckgo.com result layout.
func NewEngineA(client *http.Client, userAgent string) *htmlEngine {
	return &htmlEngine{
		name:       AdapterEngineA,
		baseURL:    "https://html.duckduckgo.com/html/",
		queryParam: "q",
		resultSel:  "div.result",
		titleSel:   "a.result__a",
		snippetSel: "a.result__snippet",
		UserAgent:  userAgent,
		client:     client,
		confidence: 0.7,
	}
}

// NewEngineB scrapes the bing.com result layout.
func NewEngineB(client *http.Client, userAgent string) *htmlEngine {
	return &htmlEngine{
		name:       AdapterEngineB,
		baseURL:    "https://www.bing.com/search",
		queryParam: "q",
		resultSel:  "li.b_algo",
		titleSel:   "h2 a",
		snippetSel: "div.b_caption p",
		UserAgent:  userAgent,
		client:     client,
		confidence: 0.7,
	}
}

func (e *htmlEngine) Name() string        { return e.name }
func (e *htmlEngine) Confidence() float64 { return e.confidence }

// SetBaseURL points the engine at a different endpoint. Used by tests.
func (e *htmlEngine) SetBaseURL(u string) { e.baseURL = u }

func (e *htmlEngine) Search(ctx context.Context, query string, n int) ([]RawCandidate, error) {
	endpoint := e.baseURL + "?" + e.queryParam + "=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := fetch(e.client, req, e.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", e.name, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s parse: %w", e.name, err)
	}

	var candidates []RawCandidate
	doc.Find(e.resultSel).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		titleNode := sel.Find(e.titleSel).First()
		title := strings.TrimSpace(titleNode.Text())
		snippet := strings.TrimSpace(sel.Find(e.snippetSel).First().Text())
		href, _ := titleNode.Attr("href")
		if title == "" || snippet == "" {
			// Ad blocks and layout fragments match the result selector
			// on some pages; skip anything without both fields.
			return true
		}
		candidates = append(candidates, RawCandidate{
			Title:      title,
			Content:    snippet,
			URL:        href,
			Adapter:    e.name,
			Confidence: e.confidence,
			Index:      len(candidates),
		})
		return len(candidates) < n
	})

	logging.RetrieverDebug("%s: %d candidates for %q", e.name, len(candidates), query)
	return candidates, nil
}

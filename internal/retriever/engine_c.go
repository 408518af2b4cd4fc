package retriever

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"thorlearn/internal/logging"
)

// EngineC scrapes the mojeek.com result layout. Its markup is simple enough
// that a direct node walk beats selector matching, and it keeps a second
// parser exercised in case an engine changes markup under goquery's nose.
type EngineC struct {
	BaseURL    string
	UserAgent  string
	client     *http.Client
	confidence float64
}

func NewEngineC(client *http.Client, userAgent string) *EngineC {
	return &EngineC{
		BaseURL:    "https://www.mojeek.com/search",
		UserAgent:  userAgent,
		client:     client,
		confidence: 0.7,
	}
}

func (e *EngineC) Name() string        { return AdapterEngineC }
func (e *EngineC) Confidence() float64 { return e.confidence }

func (e *EngineC) Search(ctx context.Context, query string, n int) ([]RawCandidate, error) {
	endpoint := e.BaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := fetch(e.client, req, e.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("engine_c fetch: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("engine_c parse: %w", err)
	}

	var candidates []RawCandidate
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if len(candidates) >= n {
			return
		}
		if node.Type == html.ElementNode && node.Data == "li" {
			title, href := findAnchor(node, "title")
			snippet := findTextByClass(node, "s")
			if title != "" && snippet != "" {
				candidates = append(candidates, RawCandidate{
					Title:      title,
					Content:    snippet,
					URL:        href,
					Adapter:    e.Name(),
					Confidence: e.confidence,
					Index:      len(candidates),
				})
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	logging.RetrieverDebug("engine_c: %d candidates for %q", len(candidates), query)
	return candidates, nil
}

// findAnchor returns the text and href of the first <a> under node whose
// class attribute contains the given class.
func findAnchor(node *html.Node, class string) (text, href string) {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, class) {
			text = strings.TrimSpace(nodeText(n))
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
				}
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(node)
	return text, href
}

// findTextByClass returns the text of the first element under node carrying
// the given class.
func findTextByClass(node *html.Node, class string) string {
	var result string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data != "a" && hasClass(n, class) {
			result = strings.TrimSpace(nodeText(n))
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(node)
	return result
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

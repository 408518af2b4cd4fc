// Package retriever implements the multi-engine retrieval layer: per-source
// adapters fan out in parallel for a query, raw candidates are normalized and
// deduplicated, and a reranker produces the final top-K list.
package retriever

import (
	"context"
	"time"
)

// Adapter name constants. These are the closed set of source identifiers
// stored in knowledge_items.source_adapter.
const (
	AdapterEncyclopedia = "encyclopedia"
	AdapterEngineA      = "engine_a"
	AdapterEngineB      = "engine_b"
	AdapterEngineC      = "engine_c"
	AdapterBrave        = "brave"
	AdapterSerpAPI      = "serpapi"
)

// RawCandidate is an unranked result produced by one adapter before
// normalization.
type RawCandidate struct {
	Title       string
	Content     string
	URL         string
	Adapter     string
	Confidence  float64
	Index       int       // position within the adapter's own result order
	PublishedAt time.Time // zero when the source carries no timestamp
}

// Adapter is a single retrieval source. Search returns up to n raw
// candidates; a failed or empty search is reported as an error or an empty
// slice, never as a panic.
type Adapter interface {
	Name() string
	Confidence() float64
	Search(ctx context.Context, query string, n int) ([]RawCandidate, error)
}

// Result is a reranked candidate with its final score.
type Result struct {
	RawCandidate
	Score float64
}

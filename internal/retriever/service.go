package retriever

import (
	"context"
	"time"

	"thorlearn/internal/config"
	"thorlearn/internal/logging"
	"thorlearn/internal/store"
)

// SearchOptions tunes a read-side knowledge search.
type SearchOptions struct {
	// K overrides the configured top-K when positive.
	K int
	// ForceDiversity applies per-source sampling even for plain queries.
	ForceDiversity bool
	// ComparisonHint marks the query as a comparison when the caller knows
	// more than the phrase heuristics do.
	ComparisonHint bool
}

// Service is the read path consumed by answer-shaping collaborators: it
// searches already-stored knowledge and reranks it with the same scoring the
// retriever applies to fresh candidates. It never writes to the store.
type Service struct {
	store *store.KnowledgeStore
	cfg   config.SearchConfig
	now   func() time.Time
}

func NewService(st *store.KnowledgeStore, cfg config.SearchConfig) *Service {
	return &Service{store: st, cfg: cfg, now: time.Now}
}

// Search returns stored knowledge items ranked against the query.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]store.KnowledgeItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	comparison := opts.ComparisonHint || IsComparisonQuery(query)

	k := s.cfg.TopK
	if comparison {
		k = s.cfg.TopKComparison
	}
	if opts.K > 0 {
		k = opts.K
	}

	queries := []string{query}
	if comparison {
		queries = append(queries, SubQueries(query)...)
	}

	// Pull a candidate pool per query, dedup by item id across sub-queries.
	// The candidate Index doubles as the key back to the source item.
	seen := make(map[int64]bool)
	var candidates []RawCandidate
	var items []store.KnowledgeItem
	for _, q := range queries {
		hits, err := s.store.SearchKnowledge(q, k*4)
		if err != nil {
			return nil, err
		}
		for _, item := range hits {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			candidates = append(candidates, RawCandidate{
				Title:       item.Title,
				Content:     item.Content,
				URL:         item.URL,
				Adapter:     item.SourceAdapter,
				Confidence:  item.Confidence,
				Index:       len(candidates),
				PublishedAt: item.LearnedAt,
			})
			items = append(items, item)
		}
	}

	diversity := comparison || opts.ForceDiversity
	ranked := Rerank(query, candidates, k, s.cfg.PerSourceCap, s.cfg.MinContentChars, diversity, s.now())

	out := make([]store.KnowledgeItem, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, items[r.Index])
	}

	logging.RetrieverDebug("knowledge search %q: %d candidates, %d returned", query, len(candidates), len(out))
	return out, nil
}

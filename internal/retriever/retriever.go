package retriever

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"thorlearn/internal/config"
	"thorlearn/internal/logging"
	"thorlearn/internal/normalize"
	"thorlearn/internal/ratelimit"
)

// Retriever fans a query out to every configured adapter, normalizes and
// deduplicates the candidates, and returns the reranked top K. It never
// touches the knowledge store.
type Retriever struct {
	adapters []Adapter
	limiter  *ratelimit.Limiter
	cfg      config.SearchConfig

	// now is injectable for deterministic rerank tests.
	now func() time.Time
}

// New builds the standard adapter set: the encyclopedia baseline, three HTML
// engines, and the paid APIs when their keys are configured.
func New(cfg config.SearchConfig, limiter *ratelimit.Limiter) *Retriever {
	client := &http.Client{Timeout: cfg.AdapterTimeout}

	adapters := []Adapter{
		NewEncyclopediaAdapter(client, cfg.UserAgent),
		NewEngineA(client, cfg.UserAgent),
		NewEngineB(client, cfg.UserAgent),
		NewEngineC(client, cfg.UserAgent),
	}
	if cfg.BraveAPIKey != "" {
		adapters = append(adapters, NewBraveAdapter(client, cfg.BraveAPIKey))
	}
	if cfg.SerpAPIKey != "" {
		adapters = append(adapters, NewSerpAPIAdapter(client, cfg.SerpAPIKey))
	}

	return NewWithAdapters(cfg, limiter, adapters...)
}

// NewWithAdapters builds a retriever over an explicit adapter set. Tests use
// this to inject mock adapters.
func NewWithAdapters(cfg config.SearchConfig, limiter *ratelimit.Limiter, adapters ...Adapter) *Retriever {
	return &Retriever{
		adapters: adapters,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Adapters returns the configured adapter set.
func (r *Retriever) Adapters() []Adapter { return r.adapters }

// Search runs the full per-query flow: quota computation, parallel adapter
// fan-out under the rate limiter and per-adapter timeouts, normalization,
// fingerprint dedup, and reranking. Adapter failures are logged and yield
// empty lists; the call only returns an empty result when every adapter
// produced nothing acceptable.
func (r *Retriever) Search(ctx context.Context, query string) []Result {
	// Short correlation id tying this query's log lines together across
	// the concurrent adapter calls.
	qid := uuid.NewString()[:8]
	comparison := IsComparisonQuery(query)

	k := r.cfg.TopK
	if comparison {
		k = r.cfg.TopKComparison
	}

	queries := []string{query}
	if comparison {
		queries = append(queries, SubQueries(query)...)
	}

	var mu sync.Mutex
	var merged []RawCandidate
	var g errgroup.Group

	for _, adapter := range r.adapters {
		for _, q := range queries {
			a, q := adapter, q
			g.Go(func() error {
				if err := r.limiter.Acquire(ctx, a.Name()); err != nil {
					return nil
				}

				callCtx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
				defer cancel()

				candidates, err := a.Search(callCtx, q, r.quota(a, comparison))
				if err != nil {
					// Adapter failures are recovered locally; the query
					// proceeds on whatever the other adapters return.
					logging.RetrieverDebug("[%s] adapter %s failed for %q: %v", qid, a.Name(), q, err)
					return nil
				}

				mu.Lock()
				merged = append(merged, candidates...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	accepted := r.normalizeAndDedup(merged)
	results := Rerank(query, accepted, k, r.cfg.PerSourceCap, r.cfg.MinContentChars, comparison, r.now())

	logging.Retriever("[%s] query %q: %d raw, %d accepted, %d returned (comparison=%v)",
		qid, query, len(merged), len(accepted), len(results), comparison)
	return results
}

// quota decides how many candidates to request from one adapter. The
// encyclopedia endpoint only ever yields one or two; the engines get more,
// and comparison queries raise the engine quota.
func (r *Retriever) quota(a Adapter, comparison bool) int {
	if a.Name() == AdapterEncyclopedia {
		return 2
	}
	if comparison {
		return 6
	}
	return 4
}

// normalizeAndDedup cleans every candidate, drops unacceptable ones, and
// removes fingerprint duplicates across adapters.
func (r *Retriever) normalizeAndDedup(candidates []RawCandidate) []RawCandidate {
	seen := make(map[string]bool)
	var accepted []RawCandidate
	for _, cand := range candidates {
		cand.Title = normalize.Normalize(cand.Title)
		cand.Content = normalize.Clean(cand.Content)
		if !normalize.Acceptable(cand.Content, r.cfg.MinContentChars) {
			continue
		}
		fp := normalize.Fingerprint(cand.Title, cand.Content, cand.Adapter)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		accepted = append(accepted, cand)
	}
	return accepted
}

package retriever

import (
	"math"
	"sort"
	"strings"
	"time"

	"thorlearn/internal/normalize"
)

// Scoring weights. Semantic overlap dominates; the other components are
// bounded nudges.
const (
	recencyWeight        = 0.1
	recencyDecayDays     = 90.0
	promoPenaltyMax      = 0.2
	lowContentPenaltyMax = 0.2
)

// aliases expands common programming-language abbreviations so a query for
// "js frameworks" still matches a candidate titled "JavaScript frameworks".
// Both directions are applied.
var aliases = map[string]string{
	"js":     "javascript",
	"ts":     "typescript",
	"py":     "python",
	"golang": "go",
	"cpp":    "c++",
	"k8s":    "kubernetes",
	"ml":     "machine learning",
	"ai":     "artificial intelligence",
	"db":     "database",
	"regex":  "regular expression",
}

// Rerank scores, sorts, and trims candidates to the top k. When comparison is
// set, diversity sampling caps each adapter's contribution at perSourceCap
// before filling the remainder from global order.
func Rerank(query string, candidates []RawCandidate, k, perSourceCap, minContentChars int, comparison bool, now time.Time) []Result {
	if len(candidates) == 0 {
		return nil
	}

	queryTokens := expandTokens(query)
	scored := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		scored = append(scored, Result{
			RawCandidate: cand,
			Score:        score(queryTokens, cand, minContentChars, now),
		})
	}

	// Stable order: score desc, adapter-declared index asc, adapter name asc.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Index != scored[j].Index {
			return scored[i].Index < scored[j].Index
		}
		return scored[i].Adapter < scored[j].Adapter
	})

	scored = dedupByTitle(scored)

	if comparison && perSourceCap > 0 {
		scored = diversitySample(scored, perSourceCap)
	}

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func score(queryTokens map[string]bool, cand RawCandidate, minContentChars int, now time.Time) float64 {
	text := cand.Title + " " + cand.Content
	s := semanticOverlap(queryTokens, text)

	if !cand.PublishedAt.IsZero() {
		ageDays := now.Sub(cand.PublishedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		s += recencyWeight * math.Exp(-ageDays/recencyDecayDays)
	}

	if density := normalize.PromoDensity(strings.ToLower(text)); density > 0 {
		s -= promoPenaltyMax * math.Min(1, density*4)
	}

	if minContentChars > 0 {
		floor := 2 * minContentChars
		if n := len(cand.Content); n < floor {
			s -= lowContentPenaltyMax * (1 - float64(n)/float64(floor))
		}
	}

	// Clamp to [0, 1].
	return math.Max(0, math.Min(1, s))
}

// semanticOverlap is the fraction of query tokens present in the candidate
// text, after alias expansion on both sides.
func semanticOverlap(queryTokens map[string]bool, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := expandTokens(text)
	matched := 0
	for token := range queryTokens {
		if textTokens[token] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func expandTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(raw, ".,;:!?\"'()[]")
		if token == "" {
			continue
		}
		tokens[token] = true
		if expanded, ok := aliases[token]; ok {
			for _, part := range strings.Fields(expanded) {
				tokens[part] = true
			}
		}
	}
	// Reverse direction: a text containing "javascript" should satisfy a
	// query token "js".
	for abbrev, expanded := range aliases {
		if tokens[strings.Fields(expanded)[0]] {
			tokens[abbrev] = true
		}
	}
	return tokens
}

func dedupByTitle(results []Result) []Result {
	seen := make(map[string]bool)
	out := results[:0]
	for _, r := range results {
		key := strings.ToLower(normalize.Normalize(r.Title))
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// diversitySample takes up to cap results per adapter in score order, then
// appends the remaining results in global order. Relative order within the
// capped selection follows the incoming (already sorted) order.
func diversitySample(results []Result, limit int) []Result {
	perAdapter := make(map[string]int)
	var picked []Result
	var overflow []Result
	for _, r := range results {
		if perAdapter[r.Adapter] < limit {
			perAdapter[r.Adapter]++
			picked = append(picked, r)
		} else {
			overflow = append(overflow, r)
		}
	}
	return append(picked, overflow...)
}

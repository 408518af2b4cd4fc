package retriever

import "strings"

// comparisonMarkers flag queries that want multiple perspectives. Such
// queries get larger quotas, a bigger K, and diversity sampling.
var comparisonMarkers = []string{
	"relationship between",
	"difference between",
	"compare",
	"how does",
	" vs ",
	" vs. ",
	" versus ",
}

// IsComparisonQuery reports whether the query asks to relate or contrast
// topics rather than describe a single one.
func IsComparisonQuery(query string) bool {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	for _, marker := range comparisonMarkers {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}

// SubQueries splits a comparison query naming two topics into per-topic
// sub-queries so each side gets its own retrieval pass. Returns nil when the
// query does not decompose.
func SubQueries(query string) []string {
	if !IsComparisonQuery(query) {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))

	for _, prefix := range []string{"relationship between ", "difference between ", "compare "} {
		if idx := strings.Index(q, prefix); idx >= 0 {
			rest := q[idx+len(prefix):]
			if parts := splitPair(rest, " and "); parts != nil {
				return parts
			}
		}
	}
	for _, sep := range []string{" vs. ", " vs ", " versus "} {
		if parts := splitPair(q, sep); parts != nil {
			return parts
		}
	}
	return nil
}

func splitPair(s, sep string) []string {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return nil
	}
	a := strings.Trim(strings.TrimSpace(parts[0]), "?.!")
	b := strings.Trim(strings.TrimSpace(parts[1]), "?.!")
	if a == "" || b == "" {
		return nil
	}
	return []string{a, b}
}

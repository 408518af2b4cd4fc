// Package normalize provides stateless text cleanup for retrieved snippets:
// promotional phrase stripping, encyclopedia artifact removal, acceptability
// checks, and the stable fingerprint used to dedupe knowledge across
// adapters. All functions are pure; comparisons are case-insensitive after
// trimming and internal whitespace collapse.
package normalize

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinContentChars is the acceptability floor for candidate bodies.
const DefaultMinContentChars = 40

// fingerprintPrefixLen is how much normalized content feeds the dedup hash.
const fingerprintPrefixLen = 280

var (
	wsRe = regexp.MustCompile(`\s+`)

	// Leading calls to action. Anchored so mid-sentence mentions survive.
	leadingPromoRe = regexp.MustCompile(`(?i)^(learn (everything|all|more) about|discover|click here( to)?|subscribe( now)?( to)?|buy now|sign up( for| to)?|don'?t miss|check out|get started with|find out( more)?( about)?)[\s:,-]*`)

	// Trailing calls to action.
	trailingPromoRe = regexp.MustCompile(`(?i)[\s:,-]*(to get started|to learn more|subscribe now|sign up today|buy now|click here|visit (us|our (site|website)))[.!\s]*$`)

	// Bracketed footnote markers and citation-needed tags from encyclopedia
	// extracts, e.g. "[1]", "[12]", "[citation needed]", "[a]".
	footnoteRe = regexp.MustCompile(`\[(\d+|[a-z]|citation needed|note \d+)\]`)

	// Inline reference markers like "^ a b" that survive plain-text extracts.
	refCaretRe = regexp.MustCompile(`\^+\s*([a-z]\s+)*`)
)

// promoVocabulary is counted to detect promotional-dominated bodies.
var promoVocabulary = []string{
	"buy", "subscribe", "click", "discount", "offer", "deal", "sale",
	"free trial", "sign up", "limited time", "exclusive", "promo",
	"best price", "order now", "shop",
}

// genericOpeners reject boilerplate landing-page snippets outright.
var genericOpeners = []string{"official", "welcome", "visit", "click"}

// Normalize collapses whitespace, trims, and capitalizes the first letter.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	text = wsRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return capitalizeFirst(text)
}

// StripPromotional removes leading and trailing call-to-action phrasing and
// normalizes the remainder.
func StripPromotional(text string) string {
	text = strings.TrimSpace(text)
	// Openers may be stacked ("Discover - click here to ..."); strip until
	// the text stops changing.
	for {
		stripped := leadingPromoRe.ReplaceAllString(text, "")
		if stripped == text {
			break
		}
		text = strings.TrimSpace(stripped)
	}
	text = trailingPromoRe.ReplaceAllString(text, "")
	return Normalize(text)
}

// StripEncyclopediaArtifacts removes footnote markers and citation tags
// characteristic of encyclopedia extracts.
func StripEncyclopediaArtifacts(text string) string {
	text = footnoteRe.ReplaceAllString(text, "")
	text = refCaretRe.ReplaceAllString(text, "")
	return Normalize(text)
}

// Clean runs the full normalization pipeline on a candidate body.
func Clean(text string) string {
	return StripPromotional(StripEncyclopediaArtifacts(text))
}

// Acceptable reports whether a normalized body is worth storing. It rejects
// short bodies, promotional-dominated text, and generic landing-page openers.
func Acceptable(text string, minChars int) bool {
	if minChars <= 0 {
		minChars = DefaultMinContentChars
	}
	text = strings.TrimSpace(text)
	if len(text) < minChars {
		return false
	}

	lower := strings.ToLower(text)
	for _, opener := range genericOpeners {
		if hasWordPrefix(lower, opener) {
			return false
		}
	}

	return PromoDensity(lower) < 0.15
}

// hasWordPrefix reports whether s starts with prefix as a whole word, so
// "click here" matches but "clickstream" does not.
func hasWordPrefix(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	rest := s[len(prefix):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// PromoDensity returns the fraction of words that are promotional vocabulary.
// Exposed because the reranker reuses it as a safety-net penalty.
func PromoDensity(lowerText string) float64 {
	words := strings.Fields(lowerText)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, term := range promoVocabulary {
		hits += strings.Count(lowerText, term)
	}
	return float64(hits) / float64(len(words))
}

// Fingerprint computes the stable dedup hash for a candidate: normalized
// title + the first 280 chars of normalized content + the adapter identifier
// truncated to 8 chars. Case-insensitive.
func Fingerprint(title, content, adapter string) string {
	t := strings.ToLower(Normalize(title))
	c := strings.ToLower(Normalize(content))
	if len(c) > fingerprintPrefixLen {
		c = c[:fingerprintPrefixLen]
	}
	a := adapter
	if len(a) > 8 {
		a = a[:8]
	}

	h := fnv.New64a()
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write([]byte(c))
	h.Write([]byte{0})
	h.Write([]byte(a))
	return fmt.Sprintf("%016x", h.Sum64())
}

// EqualFold reports whether two strings match after trimming and internal
// whitespace collapse, ignoring case. Used for title dedup.
func EqualFold(a, b string) bool {
	return strings.EqualFold(
		wsRe.ReplaceAllString(strings.TrimSpace(a), " "),
		wsRe.ReplaceAllString(strings.TrimSpace(b), " "),
	)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

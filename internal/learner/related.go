package learner

import (
	"regexp"
	"strings"
)

// relatedRe captures topic names that content mentions alongside the crawled
// topic. The capture stops at sentence punctuation and is length-bounded so a
// runaway match never seeds a garbage topic.
var relatedRe = regexp.MustCompile(`(?i)(?:also known as|related to)\s+(?:the\s+)?([a-zA-Z][a-zA-Z0-9' -]{2,40}?)(?:\s+(?:and|or|in|for|with|that|which)\b|[,.;:]|$)`)

// extractRelatedTopics pulls candidate related-topic names from knowledge
// content, deduplicated case-insensitively and capped.
func extractRelatedTopics(contents []string, ownTopic string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(ownTopic)): true}
	var names []string
	for _, content := range contents {
		for _, match := range relatedRe.FindAllStringSubmatch(content, -1) {
			name := strings.TrimSpace(strings.Trim(match[1], " -'"))
			key := strings.ToLower(name)
			if len(name) < 3 || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
			if len(names) >= limit {
				return names
			}
		}
	}
	return names
}

package scheduler

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"thorlearn/internal/logging"
)

// Dictionary is the bootstrap topic list. Categories map a category name to
// explicit member topics; topics not listed anywhere are categorized by
// keyword heuristics.
type Dictionary struct {
	Topics     []string            `yaml:"topics"`
	Categories map[string][]string `yaml:"categories"`
}

// builtinTopics is the fallback seed set when no dictionary file exists.
// Startup must never fail because of a missing dictionary.
var builtinTopics = []string{
	"quantum computing",
	"machine learning",
	"python programming",
	"world history",
	"photosynthesis",
	"number theory",
	"classical music",
	"supply and demand",
	"stoicism",
	"solar energy",
}

// LoadDictionary reads the YAML dictionary at path. A missing file yields the
// built-in list; a malformed file is an error so operator typos surface.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.Scheduler("no dictionary at %s, using built-in seed list (%d topics)", path, len(builtinTopics))
		return &Dictionary{Topics: append([]string(nil), builtinTopics...)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}

	var dict Dictionary
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary: %w", err)
	}
	if len(dict.Topics) == 0 && len(dict.Categories) == 0 {
		dict.Topics = append([]string(nil), builtinTopics...)
	}

	logging.Scheduler("loaded dictionary from %s (%d topics, %d categories)",
		path, len(dict.Topics), len(dict.Categories))
	return &dict, nil
}

// Entries flattens the dictionary into (topic, category) pairs. Explicit
// category membership wins over keyword heuristics.
func (d *Dictionary) Entries() [][2]string {
	var entries [][2]string
	seen := make(map[string]bool)

	for category, topics := range d.Categories {
		for _, topic := range topics {
			key := strings.ToLower(strings.TrimSpace(topic))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			entries = append(entries, [2]string{topic, category})
		}
	}
	for _, topic := range d.Topics {
		key := strings.ToLower(strings.TrimSpace(topic))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, [2]string{topic, CategorizeTopic(topic)})
	}
	return entries
}

// categoryKeywords drive the heuristic categorization of uncategorized
// topics. First match wins, checked in a fixed order.
var categoryOrder = []string{
	"programming", "science", "history", "mathematics",
	"biology", "arts", "economics", "philosophy",
}

var categoryKeywords = map[string][]string{
	"programming": {"programming", "software", "code", "javascript", "python", "golang", "compiler", "database", "algorithm", "api"},
	"science":     {"physics", "chemistry", "quantum", "energy", "astronomy", "climate", "scientific", "relativity"},
	"history":     {"history", "ancient", "war", "empire", "revolution", "medieval"},
	"mathematics": {"math", "theorem", "geometry", "algebra", "calculus", "number theory", "statistics"},
	"biology":     {"biology", "cell", "gene", "evolution", "photosynthesis", "organism", "ecosystem"},
	"arts":        {"music", "painting", "sculpture", "literature", "poetry", "film", "theater"},
	"economics":   {"economics", "market", "inflation", "trade", "supply", "demand", "currency"},
	"philosophy":  {"philosophy", "ethics", "stoicism", "metaphysics", "epistemology", "logic"},
}

// CategorizeTopic assigns a category by keyword match, defaulting to general.
func CategorizeTopic(topic string) string {
	lower := strings.ToLower(topic)
	for _, category := range categoryOrder {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(lower, kw) {
				return category
			}
		}
	}
	return "general"
}

package store

import (
	"encoding/json"
	"fmt"

	"thorlearn/internal/logging"
)

// RecordUserQuery appends one user-query observation. The log is append-only;
// the same query text recorded twice produces two rows.
func (s *KnowledgeStore) RecordUserQuery(queryText string, extractedTopics []string, knowledgeWasFound bool) error {
	if extractedTopics == nil {
		extractedTopics = []string{}
	}
	topicsJSON, err := json.Marshal(extractedTopics)
	if err != nil {
		return fmt.Errorf("failed to encode extracted topics: %w", err)
	}

	needsResearch := !knowledgeWasFound

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.execRetry(
		`INSERT INTO user_queries (query_text, extracted_topics, knowledge_was_found, needs_research)
		 VALUES (?, ?, ?, ?)`,
		queryText, string(topicsJSON), boolToInt(knowledgeWasFound), boolToInt(needsResearch),
	); err != nil {
		return fmt.Errorf("failed to record user query: %w", err)
	}

	logging.StoreDebug("recorded user query (found=%v, topics=%d)", knowledgeWasFound, len(extractedTopics))
	return nil
}

// GetUnansweredTopics returns distinct topic names extracted from recent
// queries that found no knowledge, most recent first, capped at limit. Names
// already crawled under any source are excluded, so a query answered by a
// later crawl stops being reported. The scheduler promotes these into the
// user_query bucket.
func (s *KnowledgeStore) GetUnansweredTopics(limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	crawled, err := s.crawledNameSet()
	if err != nil {
		return nil, err
	}

	// Pull more rows than needed since each row can carry several topics.
	rows, err := s.db.Query(
		`SELECT extracted_topics FROM user_queries
		 WHERE needs_research = 1
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		limit*4,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var names []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return names, err
		}
		var topics []string
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			logging.StoreDebug("skipping malformed extracted_topics row: %v", err)
			continue
		}
		for _, name := range topics {
			key := foldKey(name)
			if key == "" || seen[key] || crawled[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
			if len(names) >= limit {
				return names, nil
			}
		}
	}
	return names, rows.Err()
}

// crawledNameSet returns the fold keys of every crawled topic name. Caller
// holds at least the read lock.
func (s *KnowledgeStore) crawledNameSet() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM topics WHERE status = 'crawled'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	crawled := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		crawled[foldKey(name)] = true
	}
	return crawled, rows.Err()
}

// CountUserQueries returns the total number of recorded queries.
func (s *KnowledgeStore) CountUserQueries() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM user_queries`).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

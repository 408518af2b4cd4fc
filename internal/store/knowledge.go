package store

import (
	"database/sql"
	"fmt"
	"strings"

	"thorlearn/internal/logging"
	"thorlearn/internal/normalize"
)

// AddKnowledgeBatch stores knowledge items with fingerprint-based dedup.
// Items whose fingerprint already exists for the topic count as duplicates
// and are skipped. Items without a fingerprint get one computed here.
//
// The topics.knowledge_count denormalization is maintained by the caller via
// UpdateTopicStatus so that a crawl's count lands atomically with its status.
func (s *KnowledgeStore) AddKnowledgeBatch(items []KnowledgeItem) (stored, duplicates int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin knowledge batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO knowledge_items
		   (topic_id, title, content, source_adapter, url, confidence, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(topic_id, fingerprint) DO NOTHING`,
	)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		fp := item.Fingerprint
		if fp == "" {
			fp = normalize.Fingerprint(item.Title, item.Content, item.SourceAdapter)
		}
		res, err := stmt.Exec(
			item.TopicID, item.Title, item.Content, item.SourceAdapter,
			item.URL, item.Confidence, fp,
		)
		if err != nil {
			return stored, duplicates, fmt.Errorf("failed to store knowledge for topic %d: %w", item.TopicID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stored++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit knowledge batch: %w", err)
	}

	logging.StoreDebug("AddKnowledgeBatch: %d stored, %d duplicates", stored, duplicates)
	return stored, duplicates, nil
}

// GetKnowledgeForTopic returns all items for a topic, newest first.
func (s *KnowledgeStore) GetKnowledgeForTopic(topicID int64, limit int) ([]KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, topic_id, title, content, source_adapter, url, confidence, fingerprint, learned_at
		 FROM knowledge_items WHERE topic_id = ?
		 ORDER BY learned_at DESC, id DESC LIMIT ?`,
		topicID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKnowledgeRows(rows)
}

// SearchKnowledge pulls a short candidate list by keyword match over title
// and content. Ranking happens in the retriever; this is only the candidate
// pull, not full-text search over the store.
func (s *KnowledgeStore) SearchKnowledge(query string, limit int) ([]KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 30
	}

	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)")
		pattern := "%" + kw + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := s.db.Query(
		fmt.Sprintf(
			`SELECT id, topic_id, title, content, source_adapter, url, confidence, fingerprint, learned_at
			 FROM knowledge_items WHERE %s
			 ORDER BY confidence DESC, learned_at DESC LIMIT ?`,
			strings.Join(conditions, " OR "),
		),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKnowledgeRows(rows)
}

func scanKnowledgeRows(rows *sql.Rows) ([]KnowledgeItem, error) {
	var items []KnowledgeItem
	for rows.Next() {
		var item KnowledgeItem
		if err := rows.Scan(
			&item.ID, &item.TopicID, &item.Title, &item.Content,
			&item.SourceAdapter, &item.URL, &item.Confidence,
			&item.Fingerprint, &item.LearnedAt,
		); err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

package store

import (
	"fmt"
	"strings"

	"thorlearn/internal/logging"
)

// AddRelatedTopic records a discovered edge from a crawled topic to a related
// topic name and lazily creates the target as a pending discovered topic.
// Both writes are idempotent, so re-crawling a topic never duplicates edges
// or re-seeds targets.
func (s *KnowledgeStore) AddRelatedTopic(fromTopicID int64, toName string) error {
	toName = strings.TrimSpace(toName)
	if toName == "" {
		return fmt.Errorf("related topic name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin related-topic write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO related_topics (from_topic_id, to_topic_name)
		 VALUES (?, ?)
		 ON CONFLICT(from_topic_id, to_topic_name) DO NOTHING`,
		fromTopicID, toName,
	); err != nil {
		return fmt.Errorf("failed to record related topic %q: %w", toName, err)
	}

	res, err := tx.Exec(
		`INSERT INTO topics (name, source, priority, status)
		 VALUES (?, 'discovered', ?, 'pending')
		 ON CONFLICT(name, source) DO NOTHING`,
		toName, DefaultPriority(SourceDiscovered),
	)
	if err != nil {
		return fmt.Errorf("failed to seed discovered topic %q: %w", toName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit related-topic write: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		logging.StoreDebug("discovered topic %q seeded from topic %d", toName, fromTopicID)
	}
	return nil
}

// GetRelatedTopics returns the names related to a topic, oldest edge first.
func (s *KnowledgeStore) GetRelatedTopics(topicID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT to_topic_name FROM related_topics
		 WHERE from_topic_id = ? ORDER BY id ASC`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

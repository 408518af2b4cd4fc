package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"thorlearn/internal/logging"
)

// AddTopicsBatch upserts topics by (name, source). Existing rows are left
// untouched, so repeated seeding is idempotent. Returns how many rows were
// actually inserted and how many already existed.
func (s *KnowledgeStore) AddTopicsBatch(topics []Topic) (added, existing int, err error) {
	if len(topics) == 0 {
		return 0, 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin topic batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO topics (name, category, source, priority, status)
		 VALUES (?, ?, ?, ?, 'pending')
		 ON CONFLICT(name, source) DO NOTHING`,
	)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, t := range topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		priority := t.Priority
		if priority == 0 {
			priority = DefaultPriority(t.Source)
		}
		res, err := stmt.Exec(name, t.Category, string(t.Source), priority)
		if err != nil {
			return added, existing, fmt.Errorf("failed to upsert topic %q: %w", name, err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			added++
		} else {
			existing++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit topic batch: %w", err)
	}

	logging.StoreDebug("AddTopicsBatch: %d added, %d existing", added, existing)
	return added, existing, nil
}

// GetNextTopic atomically claims one pending topic: highest priority first,
// then oldest, then lowest id. The claimed topic transitions to in_progress
// with attempts incremented. Returns ErrNoTopics when nothing is pending.
func (s *KnowledgeStore) GetNextTopic() (*Topic, error) {
	return s.claimNext("")
}

// GetNextTopicFromSource is GetNextTopic restricted to one source bucket.
func (s *KnowledgeStore) GetNextTopicFromSource(source TopicSource) (*Topic, error) {
	return s.claimNext(source)
}

func (s *KnowledgeStore) claimNext(source TopicSource) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT id, name, category, source, priority, status, attempts,
	                 last_error, knowledge_count, created_at, updated_at
	          FROM topics WHERE status = 'pending'`
	args := []interface{}{}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1`

	var t Topic
	var src, status string
	err = tx.QueryRow(query, args...).Scan(
		&t.ID, &t.Name, &t.Category, &src, &t.Priority, &status,
		&t.Attempts, &t.LastError, &t.KnowledgeCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNoTopics
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next topic: %w", err)
	}

	// The status guard makes the claim safe even if the select raced a
	// concurrent writer on another connection.
	res, err := tx.Exec(
		`UPDATE topics
		 SET status = 'in_progress', attempts = attempts + 1,
		     claimed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending'`,
		t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim topic %d: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNoTopics
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	t.Source = TopicSource(src)
	t.Status = StatusInProgress
	t.Attempts++

	logging.StoreDebug("claimed topic %d %q (source=%s priority=%d attempt=%d)",
		t.ID, t.Name, t.Source, t.Priority, t.Attempts)
	return &t, nil
}

// UpdateTopicStatus moves an in_progress topic to a terminal status, stamping
// the optional knowledge count and error message. Transitions from any other
// state are rejected.
func (s *KnowledgeStore) UpdateTopicStatus(topicID int64, status TopicStatus, knowledgeCount int, lastErr string) error {
	switch status {
	case StatusCrawled, StatusNoResults, StatusError, StatusPending:
	default:
		return fmt.Errorf("invalid target status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execRetry(
		`UPDATE topics
		 SET status = ?, knowledge_count = knowledge_count + ?, last_error = ?,
		     claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'in_progress'`,
		string(status), knowledgeCount, lastErr, topicID,
	)
	if err != nil {
		return fmt.Errorf("failed to update topic %d status: %w", topicID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("topic %d is not in_progress", topicID)
	}

	logging.StoreDebug("topic %d -> %s (knowledge+%d)", topicID, status, knowledgeCount)
	return nil
}

// SweepStaleClaims returns in_progress topics whose claim is older than the
// timeout to pending. A non-positive timeout sweeps every claim. Run at
// startup to recover from crashes.
func (s *KnowledgeStore) SweepStaleClaims(timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE topics
	 SET status = 'pending', claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
	 WHERE status = 'in_progress'`
	var args []interface{}
	if timeout > 0 {
		query += ` AND (claimed_at IS NULL OR claimed_at < datetime('now', ?))`
		args = append(args, fmt.Sprintf("-%d seconds", int(timeout.Seconds())))
	}
	res, err := s.execRetry(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale claims: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("startup sweep: %d abandoned claims returned to pending", n)
	}
	return int(n), nil
}

// RequeueErroredTopics returns errored topics to pending once a retry window
// keyed on their last update has elapsed. The window doubles with each
// attempt, starting at base and capped at maxWindow. Topics at or beyond
// maxAttempts stay terminal.
func (s *KnowledgeStore) RequeueErroredTopics(maxAttempts int, base, maxWindow time.Duration) (int, error) {
	if maxAttempts <= 0 || base <= 0 {
		return 0, nil
	}
	if maxWindow < base {
		maxWindow = base
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execRetry(
		`UPDATE topics
		 SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		 WHERE status = 'error' AND attempts < ?
		   AND (strftime('%s', 'now') - strftime('%s', updated_at))
		       >= min(? * (1 << min(attempts - 1, 16)), ?)`,
		maxAttempts, int64(base.Seconds()), int64(maxWindow.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue errored topics: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("retry sweep: %d errored topics returned to pending", n)
	}
	return int(n), nil
}

// GetTopicByName returns a topic by name (case-insensitive), any source.
func (s *KnowledgeStore) GetTopicByName(name string) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Topic
	var src, status string
	err := s.db.QueryRow(
		`SELECT id, name, category, source, priority, status, attempts,
		        last_error, knowledge_count, created_at, updated_at
		 FROM topics WHERE name = ? ORDER BY id ASC LIMIT 1`,
		strings.TrimSpace(name),
	).Scan(
		&t.ID, &t.Name, &t.Category, &src, &t.Priority, &status,
		&t.Attempts, &t.LastError, &t.KnowledgeCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Source = TopicSource(src)
	t.Status = TopicStatus(status)
	return &t, nil
}

// CountTopicsByStatus returns the number of topics in the given status.
func (s *KnowledgeStore) CountTopicsByStatus(status TopicStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM topics WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

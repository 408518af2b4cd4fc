package store

import (
	"database/sql"
	"fmt"

	"thorlearn/internal/logging"
)

// StartLearningSession opens a new session row and returns its id.
func (s *KnowledgeStore) StartLearningSession() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execRetry(`INSERT INTO learning_sessions DEFAULT VALUES`)
	if err != nil {
		return 0, fmt.Errorf("failed to start learning session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	logging.Session("learning session %d started", id)
	return id, nil
}

// UpdateLearningSession adds deltas to a session's counters. Counters only
// grow; callers pass the increment since the last update, never totals.
func (s *KnowledgeStore) UpdateLearningSession(sessionID int64, topicsDelta, knowledgeDelta, errorsDelta int) error {
	if topicsDelta < 0 || knowledgeDelta < 0 || errorsDelta < 0 {
		return fmt.Errorf("session counter deltas must be non-negative")
	}
	if topicsDelta == 0 && knowledgeDelta == 0 && errorsDelta == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execRetry(
		`UPDATE learning_sessions
		 SET topics_crawled = topics_crawled + ?,
		     knowledge_items_added = knowledge_items_added + ?,
		     errors_encountered = errors_encountered + ?
		 WHERE id = ? AND ended_at IS NULL`,
		topicsDelta, knowledgeDelta, errorsDelta, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %d is not open", sessionID)
	}
	return nil
}

// EndLearningSession stamps the session's end time. Ending an already-ended
// session is a no-op.
func (s *KnowledgeStore) EndLearningSession(sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.execRetry(
		`UPDATE learning_sessions SET ended_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND ended_at IS NULL`,
		sessionID,
	); err != nil {
		return fmt.Errorf("failed to end session %d: %w", sessionID, err)
	}

	logging.Session("learning session %d ended", sessionID)
	return nil
}

// CloseAbandonedSessions marks sessions left open by a previous process as
// aborted. Run at startup before a new session begins.
func (s *KnowledgeStore) CloseAbandonedSessions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execRetry(
		`UPDATE learning_sessions
		 SET ended_at = CURRENT_TIMESTAMP, aborted = 1
		 WHERE ended_at IS NULL`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close abandoned sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Session("startup: %d abandoned sessions marked aborted", n)
	}
	return int(n), nil
}

// GetSessionStats returns a snapshot of one session's counters, or nil if the
// session does not exist.
func (s *KnowledgeStore) GetSessionStats(sessionID int64) (*SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats SessionStats
	var ended sql.NullTime
	var aborted int
	err := s.db.QueryRow(
		`SELECT id, started_at, ended_at, aborted,
		        topics_crawled, knowledge_items_added, errors_encountered
		 FROM learning_sessions WHERE id = ?`,
		sessionID,
	).Scan(
		&stats.ID, &stats.StartedAt, &ended, &aborted,
		&stats.TopicsCrawled, &stats.KnowledgeItemsAdded, &stats.ErrorsEncountered,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		stats.EndedAt = &ended.Time
	}
	stats.Aborted = aborted != 0
	return &stats, nil
}

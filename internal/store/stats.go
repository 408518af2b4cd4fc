package store

import "fmt"

// GetDatabaseStats collects store-wide totals plus 24-hour activity windows
// for the status command.
func (s *KnowledgeStore) GetDatabaseStats() (*DatabaseStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &DatabaseStats{TopicsByStatus: make(map[string]int64)}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM topics`, &stats.TotalTopics},
		{`SELECT COUNT(*) FROM knowledge_items`, &stats.TotalKnowledge},
		{`SELECT COUNT(*) FROM user_queries`, &stats.TotalUserQueries},
		{`SELECT COUNT(*) FROM learning_sessions`, &stats.TotalSessions},
		{`SELECT COUNT(*) FROM topics WHERE created_at >= datetime('now', '-1 day')`, &stats.TopicsLast24h},
		{`SELECT COUNT(*) FROM knowledge_items WHERE learned_at >= datetime('now', '-1 day')`, &stats.KnowledgeLast24h},
		{`SELECT COUNT(*) FROM user_queries WHERE recorded_at >= datetime('now', '-1 day')`, &stats.UserQueriesLast24h},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to collect store stats: %w", err)
		}
	}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM topics GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.TopicsByStatus[status] = n
	}
	return stats, rows.Err()
}

// Package store implements the durable knowledge store backing the
// acquisition core: topics, knowledge items, related-topic edges, user-query
// feedback, and learning sessions, all in a single local SQLite file.
//
// The store is single-writer: every mutating operation takes the writer lock
// and no partial state is ever visible to readers. Readers proceed
// concurrently under the read lock. Running two processes against the same
// file is unsupported.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"thorlearn/internal/logging"
)

// ErrNoTopics is returned by GetNextTopic when nothing is pending.
var ErrNoTopics = errors.New("no pending topics")

// TopicSource identifies where a topic came from.
type TopicSource string

const (
	SourceDictionary TopicSource = "dictionary"
	SourceUserQuery  TopicSource = "user_query"
	SourceTrending   TopicSource = "trending"
	SourceDiscovered TopicSource = "discovered"
	SourceManual     TopicSource = "manual"
)

// TopicStatus is the crawl lifecycle state of a topic.
type TopicStatus string

const (
	StatusPending    TopicStatus = "pending"
	StatusInProgress TopicStatus = "in_progress"
	StatusCrawled    TopicStatus = "crawled"
	StatusNoResults  TopicStatus = "no_results"
	StatusError      TopicStatus = "error"
)

// DefaultPriority maps a topic source to its default scheduling priority.
func DefaultPriority(source TopicSource) int {
	switch source {
	case SourceUserQuery:
		return 8
	case SourceTrending:
		return 7
	case SourceManual:
		return 9
	case SourceDiscovered:
		return 4
	default:
		return 5
	}
}

// Topic is a unit of research work.
type Topic struct {
	ID             int64
	Name           string
	Category       string
	Source         TopicSource
	Priority       int
	Status         TopicStatus
	Attempts       int
	LastError      string
	KnowledgeCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KnowledgeItem is a normalized, stored snippet attached to a topic.
type KnowledgeItem struct {
	ID            int64
	TopicID       int64
	Title         string
	Content       string
	SourceAdapter string
	URL           string
	Confidence    float64
	Fingerprint   string
	LearnedAt     time.Time
}

// UserQueryRecord is append-only feedback from the serving side.
type UserQueryRecord struct {
	ID                int64
	QueryText         string
	ExtractedTopics   []string
	KnowledgeWasFound bool
	NeedsResearch     bool
	RecordedAt        time.Time
}

// SessionStats is a snapshot of a learning session's counters.
type SessionStats struct {
	ID                  int64
	StartedAt           time.Time
	EndedAt             *time.Time
	Aborted             bool
	TopicsCrawled       int
	KnowledgeItemsAdded int
	ErrorsEncountered   int
}

// DatabaseStats reports store totals plus 24-hour windowed counters.
type DatabaseStats struct {
	TotalTopics        int64
	TopicsByStatus     map[string]int64
	TotalKnowledge     int64
	TotalUserQueries   int64
	TotalSessions      int64
	TopicsLast24h      int64
	KnowledgeLast24h   int64
	UserQueriesLast24h int64
}

// KnowledgeStore is the single-writer SQLite store.
type KnowledgeStore struct {
	db          *sql.DB
	mu          sync.RWMutex
	dbPath      string
	busyRetries int
}

// Open initializes the SQLite database at the given path (":memory:" for
// tests), creating the schema if needed.
func Open(path string) (*KnowledgeStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the single-writer model honest and avoids
	// table-lock churn between pooled connections.
	db.SetMaxOpenConns(1)

	s := &KnowledgeStore{db: db, dbPath: path, busyRetries: 3}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("knowledge store opened at %s", path)
	return s, nil
}

// SetBusyRetries configures how many times contended writes are retried.
func (s *KnowledgeStore) SetBusyRetries(n int) {
	if n >= 0 {
		s.busyRetries = n
	}
}

// initialize creates the required tables and indexes.
func (s *KnowledgeStore) initialize() error {
	topicsTable := `
	CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL COLLATE NOCASE,
		category TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 5,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		knowledge_count INTEGER NOT NULL DEFAULT 0,
		claimed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(name, source)
	);
	CREATE INDEX IF NOT EXISTS idx_topics_sched ON topics(status, priority DESC, created_at ASC);
	CREATE INDEX IF NOT EXISTS idx_topics_name ON topics(name);
	`

	knowledgeTable := `
	CREATE TABLE IF NOT EXISTS knowledge_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_id INTEGER NOT NULL REFERENCES topics(id),
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		source_adapter TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0.5,
		fingerprint TEXT NOT NULL,
		learned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(topic_id, fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_topic ON knowledge_items(topic_id);
	`

	relatedTable := `
	CREATE TABLE IF NOT EXISTS related_topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_topic_id INTEGER NOT NULL REFERENCES topics(id),
		to_topic_name TEXT NOT NULL COLLATE NOCASE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(from_topic_id, to_topic_name)
	);
	`

	queriesTable := `
	CREATE TABLE IF NOT EXISTS user_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_text TEXT NOT NULL,
		extracted_topics TEXT NOT NULL DEFAULT '[]',
		knowledge_was_found INTEGER NOT NULL DEFAULT 0,
		needs_research INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_queries_recorded ON user_queries(recorded_at);
	`

	sessionsTable := `
	CREATE TABLE IF NOT EXISTS learning_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		aborted INTEGER NOT NULL DEFAULT 0,
		topics_crawled INTEGER NOT NULL DEFAULT 0,
		knowledge_items_added INTEGER NOT NULL DEFAULT 0,
		errors_encountered INTEGER NOT NULL DEFAULT 0
	);
	`

	for _, table := range []string{topicsTable, knowledgeTable, relatedTable, queriesTable, sessionsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection. Further writes fail.
func (s *KnowledgeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.Store("knowledge store closing")
	return s.db.Close()
}

// execRetry runs a write, retrying bounded times on store contention.
// Callers must hold the writer lock.
func (s *KnowledgeStore) execRetry(query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	var err error
	for attempt := 0; ; attempt++ {
		res, err = s.db.Exec(query, args...)
		if err == nil || !isBusy(err) || attempt >= s.busyRetries {
			return res, err
		}
		logging.StoreDebug("write contention (attempt %d): %v", attempt+1, err)
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
}

// foldKey normalizes a topic name for case-insensitive dedup in Go code,
// matching the COLLATE NOCASE semantics of the schema.
func foldKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// isBusy reports whether an error is SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

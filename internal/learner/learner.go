// Package learner runs the continuous acquisition loop: a bounded pool of
// workers claims topics from the scheduler, retrieves and stores knowledge,
// and records throughput in the current learning session. A lifecycle
// controller drives the stopped, running, and paused states.
package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"thorlearn/internal/config"
	"thorlearn/internal/logging"
	"thorlearn/internal/retriever"
	"thorlearn/internal/scheduler"
	"thorlearn/internal/store"
)

// State is the lifecycle state of the learner.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// topicRetryBackoff is the base retry window for errored topics; the store
// doubles it per attempt up to MaxBackoff.
const topicRetryBackoff = time.Minute

// Retriever is the slice of the retrieval layer the workers need. Tests
// substitute a mock.
type Retriever interface {
	Search(ctx context.Context, query string) []retriever.Result
}

// Stats is the observability snapshot returned by GetStats.
type Stats struct {
	Database *store.DatabaseStats `json:"database_stats"`
	Session  SessionInfo          `json:"session"`
}

// SessionInfo describes the current lifecycle and error state.
type SessionInfo struct {
	ID                int64 `json:"id"`
	Running           bool  `json:"running"`
	Paused            bool  `json:"paused"`
	ConsecutiveErrors int   `json:"consecutive_errors"`
}

// Learner owns the worker pool and the session lifecycle.
type Learner struct {
	store *store.KnowledgeStore
	sched *scheduler.Scheduler
	retr  Retriever
	cfg   config.LearnerConfig
	stale time.Duration

	mu                sync.Mutex
	state             State
	sessionID         int64
	consecutiveErrors int
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	watchStop         chan struct{}
	watch             bool
}

// New wires a learner over its collaborators. watchDictionary enables the
// dictionary hot-reload watcher for the lifetime of a run.
func New(st *store.KnowledgeStore, sched *scheduler.Scheduler, retr Retriever, cfg *config.Config) *Learner {
	return &Learner{
		store: st,
		sched: sched,
		retr:  retr,
		cfg:   cfg.Learner,
		stale: cfg.Store.StaleClaimTimeout,
		state: StateStopped,
		watch: cfg.Scheduler.WatchDictionary,
	}
}

// Start transitions stopped -> running: recovers state left by a previous
// process, seeds the dictionary, opens a session, and launches the workers.
func (l *Learner) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateStopped {
		return fmt.Errorf("cannot start from state %s", l.state)
	}

	// Crash recovery before any new work: abandoned sessions are closed as
	// aborted and stale claims return to pending.
	if _, err := l.store.CloseAbandonedSessions(); err != nil {
		return err
	}
	if _, err := l.store.SweepStaleClaims(l.stale); err != nil {
		return err
	}
	if _, err := l.requeueErrored(); err != nil {
		return err
	}

	if err := l.sched.Seed(); err != nil {
		return err
	}

	sessionID, err := l.store.StartLearningSession()
	if err != nil {
		return err
	}
	l.sessionID = sessionID

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.consecutiveErrors = 0
	l.state = StateRunning

	if l.watch {
		l.watchStop = make(chan struct{})
		if err := l.sched.Watch(l.watchStop); err != nil {
			logging.Worker("dictionary watch unavailable: %v", err)
			l.watchStop = nil
		}
	}

	workers := l.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.workerLoop(ctx, i)
	}
	l.wg.Add(1)
	go l.throughputLoop(ctx)

	logging.Worker("learner started: session=%d workers=%d", sessionID, workers)
	return nil
}

// Pause stops new task submission. In-flight tasks finish normally.
func (l *Learner) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning {
		return fmt.Errorf("cannot pause from state %s", l.state)
	}
	l.state = StatePaused
	logging.Worker("learner paused")
	return nil
}

// Resume restarts task submission after Pause.
func (l *Learner) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StatePaused {
		return fmt.Errorf("cannot resume from state %s", l.state)
	}
	l.state = StateRunning
	logging.Worker("learner resumed")
	return nil
}

// Stop signals all workers, waits for in-flight work up to the shutdown
// deadline, and ends the session. After Stop returns, no further writes
// reach the store from this learner.
func (l *Learner) Stop() error {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return nil
	}
	cancel := l.cancel
	sessionID := l.sessionID
	watchStop := l.watchStop
	deadline := l.cfg.ShutdownDeadline
	l.mu.Unlock()

	cancel()
	if watchStop != nil {
		close(watchStop)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(deadline):
		logging.Worker("shutdown deadline (%v) exceeded, abandoning in-flight work", deadline)
	}

	if err := l.store.EndLearningSession(sessionID); err != nil {
		logging.Worker("failed to end session %d: %v", sessionID, err)
	}

	l.mu.Lock()
	l.state = StateStopped
	l.cancel = nil
	l.watchStop = nil
	l.mu.Unlock()

	logging.Worker("learner stopped: session=%d", sessionID)
	return nil
}

// State returns the current lifecycle state.
func (l *Learner) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// GetStats snapshots database totals and session lifecycle state.
func (l *Learner) GetStats() (*Stats, error) {
	dbStats, err := l.store.GetDatabaseStats()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return &Stats{
		Database: dbStats,
		Session: SessionInfo{
			ID:                l.sessionID,
			Running:           l.state == StateRunning,
			Paused:            l.state == StatePaused,
			ConsecutiveErrors: l.consecutiveErrors,
		},
	}, nil
}

// workerLoop is one worker's claim-retrieve-store cycle.
func (l *Learner) workerLoop(ctx context.Context, id int) {
	defer l.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if l.State() == StatePaused {
			if !sleepCtx(ctx, 250*time.Millisecond) {
				return
			}
			continue
		}

		topic, err := l.sched.Next(ctx)
		if errors.Is(err, store.ErrNoTopics) {
			l.resetErrors()
			if !sleepCtx(ctx, l.cfg.SearchInterval) {
				return
			}
			continue
		}
		if err != nil {
			n := l.recordLoopError(err)
			if !sleepCtx(ctx, l.backoff(n)) {
				return
			}
			continue
		}

		l.processTopic(ctx, id, topic)
		l.resetErrors()
	}
}

// processTopic runs one topic through retrieval and persists the outcome.
// Per-topic failures mark the topic, bump the session error counter, and do
// not feed the loop-level backoff.
func (l *Learner) processTopic(ctx context.Context, workerID int, topic *store.Topic) {
	timer := logging.StartTimer(logging.CategoryWorker, fmt.Sprintf("topic %q", topic.Name))
	defer timer.Stop()

	results := l.retr.Search(ctx, topic.Name)

	if ctx.Err() != nil && len(results) == 0 {
		// Shutdown interrupted the retrieval; release the claim instead of
		// recording a misleading no_results.
		if err := l.store.UpdateTopicStatus(topic.ID, store.StatusPending, 0, ""); err != nil {
			logging.WorkerDebug("worker %d: failed to release topic %d: %v", workerID, topic.ID, err)
		}
		return
	}

	if len(results) == 0 {
		if err := l.store.UpdateTopicStatus(topic.ID, store.StatusNoResults, 0, ""); err != nil {
			logging.WorkerDebug("worker %d: status update failed for topic %d: %v", workerID, topic.ID, err)
		}
		return
	}

	items := make([]store.KnowledgeItem, 0, len(results))
	contents := make([]string, 0, len(results))
	for _, r := range results {
		items = append(items, store.KnowledgeItem{
			TopicID:       topic.ID,
			Title:         r.Title,
			Content:       r.Content,
			SourceAdapter: r.Adapter,
			URL:           r.URL,
			Confidence:    r.Confidence,
		})
		contents = append(contents, r.Content)
	}

	stored, duplicates, err := l.store.AddKnowledgeBatch(items)
	if err != nil {
		l.failTopic(topic.ID, err)
		return
	}

	if err := l.store.UpdateTopicStatus(topic.ID, store.StatusCrawled, stored, ""); err != nil {
		logging.WorkerDebug("worker %d: status update failed for topic %d: %v", workerID, topic.ID, err)
		return
	}
	if err := l.store.UpdateLearningSession(l.currentSessionID(), 1, stored, 0); err != nil {
		logging.WorkerDebug("worker %d: session update failed: %v", workerID, err)
	}

	for _, name := range extractRelatedTopics(contents, topic.Name, l.cfg.RelatedTopicCap) {
		if err := l.store.AddRelatedTopic(topic.ID, name); err != nil {
			logging.WorkerDebug("worker %d: related-topic write failed: %v", workerID, err)
		}
	}

	logging.Worker("worker %d: topic %q crawled (%d stored, %d duplicates)",
		workerID, topic.Name, stored, duplicates)
}

// failTopic marks a topic errored with a short message and counts the error
// against the session.
func (l *Learner) failTopic(topicID int64, cause error) {
	msg := cause.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if err := l.store.UpdateTopicStatus(topicID, store.StatusError, 0, msg); err != nil {
		logging.WorkerDebug("failed to mark topic %d errored: %v", topicID, err)
	}
	if err := l.store.UpdateLearningSession(l.currentSessionID(), 0, 0, 1); err != nil {
		logging.WorkerDebug("session error count update failed: %v", err)
	}
}

// backoff maps the consecutive loop-error count to a sleep duration:
// min(MaxBackoff, 60s * 2^(n - threshold)) once n exceeds the threshold.
func (l *Learner) backoff(n int) time.Duration {
	if n <= l.cfg.ErrorBackoffThreshold {
		return l.cfg.SearchInterval
	}
	exp := n - l.cfg.ErrorBackoffThreshold
	d := time.Duration(60*math.Pow(2, float64(exp))) * time.Second
	if limit := l.cfg.MaxBackoff; limit > 0 && d > limit {
		d = limit
	}
	return d
}

func (l *Learner) recordLoopError(err error) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveErrors++
	logging.Worker("loop error #%d: %v", l.consecutiveErrors, err)
	return l.consecutiveErrors
}

func (l *Learner) resetErrors() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveErrors = 0
}

// requeueErrored gives errored topics under the attempt cap another chance
// once their retry window has elapsed.
func (l *Learner) requeueErrored() (int, error) {
	base := l.cfg.RetryBackoff
	if base <= 0 {
		base = topicRetryBackoff
	}
	return l.store.RequeueErroredTopics(l.cfg.MaxTopicAttempts, base, l.cfg.MaxBackoff)
}

func (l *Learner) currentSessionID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// throughputLoop logs a periodic summary of the current session and requeues
// errored topics whose retry window has elapsed.
func (l *Learner) throughputLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.requeueErrored(); err != nil {
				logging.WorkerDebug("retry sweep failed: %v", err)
			}
			stats, err := l.store.GetSessionStats(l.currentSessionID())
			if err != nil || stats == nil {
				continue
			}
			logging.Session("throughput: topics=%d items=%d errors=%d",
				stats.TopicsCrawled, stats.KnowledgeItemsAdded, stats.ErrorsEncountered)
		}
	}
}

// sleepCtx sleeps for d unless the context ends first. Returns false when the
// context ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

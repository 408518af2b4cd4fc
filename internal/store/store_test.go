package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *KnowledgeStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddTopicsBatchIdempotent(t *testing.T) {
	s := openTestStore(t)

	topics := []Topic{
		{Name: "Quantum Computing", Source: SourceDictionary},
		{Name: "Photosynthesis", Source: SourceDictionary},
		{Name: "", Source: SourceDictionary},
	}

	added, existing, err := s.AddTopicsBatch(topics)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, existing)

	added, existing, err = s.AddTopicsBatch(topics)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, existing)

	pending, err := s.CountTopicsByStatus(StatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestSameNameDifferentSourceIsDistinct(t *testing.T) {
	s := openTestStore(t)

	added, _, err := s.AddTopicsBatch([]Topic{
		{Name: "Graph Theory", Source: SourceDictionary},
		{Name: "Graph Theory", Source: SourceUserQuery},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}

func TestDefaultPriorityBySource(t *testing.T) {
	tests := []struct {
		source TopicSource
		want   int
	}{
		{SourceManual, 9},
		{SourceUserQuery, 8},
		{SourceTrending, 7},
		{SourceDictionary, 5},
		{SourceDiscovered, 4},
		{TopicSource("unknown"), 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultPriority(tt.source), "source %s", tt.source)
	}
}

func TestGetNextTopicOrdering(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{
		{Name: "low", Source: SourceDiscovered},   // priority 4
		{Name: "high", Source: SourceUserQuery},   // priority 8
		{Name: "mid-a", Source: SourceDictionary}, // priority 5, lower id
		{Name: "mid-b", Source: SourceDictionary}, // priority 5, higher id
	})
	require.NoError(t, err)

	var order []string
	for {
		topic, err := s.GetNextTopic()
		if errors.Is(err, ErrNoTopics) {
			break
		}
		require.NoError(t, err)
		order = append(order, topic.Name)
	}

	// Priority DESC, then created_at ASC, then id ASC for same-second inserts.
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, order)
}

func TestGetNextTopicClaimsAtomically(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "solo", Source: SourceDictionary}})
	require.NoError(t, err)

	topic, err := s.GetNextTopic()
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, topic.Status)
	assert.Equal(t, 1, topic.Attempts)

	// The topic is claimed; a second call finds nothing pending.
	_, err = s.GetNextTopic()
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestConcurrentClaimsAreUnique(t *testing.T) {
	s := openTestStore(t)

	var seed []Topic
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seed = append(seed, Topic{Name: name, Source: SourceDictionary})
	}
	_, _, err := s.AddTopicsBatch(seed)
	require.NoError(t, err)

	var mu sync.Mutex
	claimed := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic, err := s.GetNextTopic()
			if err != nil {
				t.Errorf("GetNextTopic: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if claimed[topic.ID] {
				t.Errorf("topic %d claimed twice", topic.ID)
			}
			claimed[topic.ID] = true
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 8)
}

func TestGetNextTopicFromSource(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{
		{Name: "dict topic", Source: SourceDictionary},
		{Name: "trending topic", Source: SourceTrending},
	})
	require.NoError(t, err)

	topic, err := s.GetNextTopicFromSource(SourceTrending)
	require.NoError(t, err)
	assert.Equal(t, "trending topic", topic.Name)

	_, err = s.GetNextTopicFromSource(SourceManual)
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestUpdateTopicStatusGuard(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "guarded", Source: SourceDictionary}})
	require.NoError(t, err)

	topic, err := s.GetTopicByName("guarded")
	require.NoError(t, err)
	require.NotNil(t, topic)

	// Pending topics cannot jump straight to crawled.
	err = s.UpdateTopicStatus(topic.ID, StatusCrawled, 3, "")
	assert.Error(t, err)

	claimed, err := s.GetNextTopic()
	require.NoError(t, err)
	require.NoError(t, s.UpdateTopicStatus(claimed.ID, StatusCrawled, 3, ""))

	got, err := s.GetTopicByName("guarded")
	require.NoError(t, err)
	assert.Equal(t, StatusCrawled, got.Status)
	assert.Equal(t, 3, got.KnowledgeCount)

	// A finished topic cannot be finished again.
	err = s.UpdateTopicStatus(claimed.ID, StatusNoResults, 0, "")
	assert.Error(t, err)
}

func TestUpdateTopicStatusRejectsInvalidTarget(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateTopicStatus(1, TopicStatus("bogus"), 0, "")
	assert.Error(t, err)
}

func TestSweepStaleClaims(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "stuck", Source: SourceDictionary}})
	require.NoError(t, err)
	claimed, err := s.GetNextTopic()
	require.NoError(t, err)

	// Backdate the claim so it looks abandoned.
	_, err = s.db.Exec(
		`UPDATE topics SET claimed_at = datetime('now', '-1 hour') WHERE id = ?`, claimed.ID)
	require.NoError(t, err)

	n, err := s.SweepStaleClaims(30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reclaimed, err := s.GetNextTopic()
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestSweepLeavesFreshClaimsAlone(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "active", Source: SourceDictionary}})
	require.NoError(t, err)
	_, err = s.GetNextTopic()
	require.NoError(t, err)

	n, err := s.SweepStaleClaims(30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRequeueErroredTopics(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "flaky", Source: SourceDictionary}})
	require.NoError(t, err)
	claimed, err := s.GetNextTopic()
	require.NoError(t, err)
	require.NoError(t, s.UpdateTopicStatus(claimed.ID, StatusError, 0, "fetch failed"))

	// Fresh failure: the retry window has not elapsed yet.
	n, err := s.RequeueErroredTopics(5, time.Minute, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = s.GetNextTopic()
	assert.ErrorIs(t, err, ErrNoTopics)

	// Backdate past the first window; the topic becomes claimable again.
	_, err = s.db.Exec(
		`UPDATE topics SET updated_at = datetime('now', '-10 minutes') WHERE id = ?`, claimed.ID)
	require.NoError(t, err)

	n, err = s.RequeueErroredTopics(5, time.Minute, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reclaimed, err := s.GetNextTopic()
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestRequeueErroredTopicsWindowDoubles(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "repeat offender", Source: SourceDictionary}})
	require.NoError(t, err)
	claimed, err := s.GetNextTopic()
	require.NoError(t, err)
	require.NoError(t, s.UpdateTopicStatus(claimed.ID, StatusError, 0, "fetch failed"))

	// Third attempt means a 4x base window: 2 minutes of age is not enough.
	_, err = s.db.Exec(
		`UPDATE topics SET attempts = 3, updated_at = datetime('now', '-2 minutes') WHERE id = ?`,
		claimed.ID)
	require.NoError(t, err)

	n, err := s.RequeueErroredTopics(5, time.Minute, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.db.Exec(
		`UPDATE topics SET updated_at = datetime('now', '-5 minutes') WHERE id = ?`, claimed.ID)
	require.NoError(t, err)

	n, err = s.RequeueErroredTopics(5, time.Minute, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRequeueErroredTopicsRespectsAttemptCap(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "hopeless", Source: SourceDictionary}})
	require.NoError(t, err)
	claimed, err := s.GetNextTopic()
	require.NoError(t, err)
	require.NoError(t, s.UpdateTopicStatus(claimed.ID, StatusError, 0, "fetch failed"))

	_, err = s.db.Exec(
		`UPDATE topics SET attempts = 5, updated_at = datetime('now', '-1 day') WHERE id = ?`,
		claimed.ID)
	require.NoError(t, err)

	// At the cap the topic is terminal no matter how old the failure is.
	n, err := s.RequeueErroredTopics(5, time.Minute, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = s.GetNextTopic()
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestAddKnowledgeBatchDedup(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "dedup", Source: SourceDictionary}})
	require.NoError(t, err)
	topic, err := s.GetTopicByName("dedup")
	require.NoError(t, err)

	items := []KnowledgeItem{
		{TopicID: topic.ID, Title: "Dedup", Content: "A fact about the topic.", SourceAdapter: "encyclopedia", Confidence: 0.9},
		{TopicID: topic.ID, Title: "Dedup", Content: "A fact about the topic.", SourceAdapter: "encyclopedia", Confidence: 0.9},
		{TopicID: topic.ID, Title: "Dedup", Content: "A fact about the topic.", SourceAdapter: "engine_a", Confidence: 0.7},
	}

	stored, dups, err := s.AddKnowledgeBatch(items)
	require.NoError(t, err)
	// Same content from a different adapter fingerprints differently.
	assert.Equal(t, 2, stored)
	assert.Equal(t, 1, dups)

	stored, dups, err = s.AddKnowledgeBatch(items[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Equal(t, 1, dups)

	got, err := s.GetKnowledgeForTopic(topic.ID, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearchKnowledge(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "search", Source: SourceDictionary}})
	require.NoError(t, err)
	topic, err := s.GetTopicByName("search")
	require.NoError(t, err)

	_, _, err = s.AddKnowledgeBatch([]KnowledgeItem{
		{TopicID: topic.ID, Title: "Solar Panels", Content: "Photovoltaic cells convert sunlight.", SourceAdapter: "encyclopedia", Confidence: 0.9},
		{TopicID: topic.ID, Title: "Wind Turbines", Content: "Blades capture kinetic energy.", SourceAdapter: "engine_a", Confidence: 0.7},
	})
	require.NoError(t, err)

	hits, err := s.SearchKnowledge("solar sunlight", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Solar Panels", hits[0].Title)

	hits, err = s.SearchKnowledge("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddRelatedTopicSeedsDiscovered(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{{Name: "origin", Source: SourceDictionary}})
	require.NoError(t, err)
	topic, err := s.GetTopicByName("origin")
	require.NoError(t, err)

	require.NoError(t, s.AddRelatedTopic(topic.ID, "Offshoot"))
	require.NoError(t, s.AddRelatedTopic(topic.ID, "Offshoot")) // idempotent

	names, err := s.GetRelatedTopics(topic.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Offshoot"}, names)

	seeded, err := s.GetTopicByName("Offshoot")
	require.NoError(t, err)
	require.NotNil(t, seeded)
	assert.Equal(t, SourceDiscovered, seeded.Source)
	assert.Equal(t, StatusPending, seeded.Status)
	assert.Equal(t, 4, seeded.Priority)
}

func TestUserQueriesAreAppendOnly(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordUserQuery("what is a qubit", []string{"Qubit"}, false))
	require.NoError(t, s.RecordUserQuery("what is a qubit", []string{"Qubit"}, false))

	n, err := s.CountUserQueries()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetUnansweredTopics(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordUserQuery("answered", []string{"Known Topic"}, true))
	require.NoError(t, s.RecordUserQuery("miss one", []string{"Qubit", "Entanglement"}, false))
	require.NoError(t, s.RecordUserQuery("miss two", []string{"qubit"}, false))

	names, err := s.GetUnansweredTopics(10)
	require.NoError(t, err)
	// Answered queries excluded, case-insensitive dedup applied.
	assert.Len(t, names, 2)
	assert.NotContains(t, names, "Known Topic")

	names, err = s.GetUnansweredTopics(1)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestGetUnansweredTopicsExcludesCrawledNames(t *testing.T) {
	s := openTestStore(t)

	// A dictionary crawl already answered this name.
	_, _, err := s.AddTopicsBatch([]Topic{{Name: "center a div", Source: SourceDictionary}})
	require.NoError(t, err)
	claimed, err := s.GetNextTopic()
	require.NoError(t, err)
	require.NoError(t, s.UpdateTopicStatus(claimed.ID, StatusCrawled, 1, ""))

	require.NoError(t, s.RecordUserQuery("how do I center a div", []string{"Center a Div"}, false))

	names, err := s.GetUnansweredTopics(10)
	require.NoError(t, err)
	assert.Empty(t, names, "a crawled name must not be reported unanswered")

	// A pending topic of the same name does not count as answered yet.
	require.NoError(t, s.RecordUserQuery("what is a monad", []string{"Monad"}, false))
	_, _, err = s.AddTopicsBatch([]Topic{{Name: "Monad", Source: SourceDictionary}})
	require.NoError(t, err)

	names, err = s.GetUnansweredTopics(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Monad"}, names)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.StartLearningSession()
	require.NoError(t, err)

	require.NoError(t, s.UpdateLearningSession(id, 1, 4, 0))
	require.NoError(t, s.UpdateLearningSession(id, 1, 2, 1))
	require.NoError(t, s.UpdateLearningSession(id, 0, 0, 0)) // no-op

	assert.Error(t, s.UpdateLearningSession(id, -1, 0, 0))

	stats, err := s.GetSessionStats(id)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TopicsCrawled)
	assert.Equal(t, 6, stats.KnowledgeItemsAdded)
	assert.Equal(t, 1, stats.ErrorsEncountered)
	assert.Nil(t, stats.EndedAt)
	assert.False(t, stats.Aborted)

	require.NoError(t, s.EndLearningSession(id))

	stats, err = s.GetSessionStats(id)
	require.NoError(t, err)
	assert.NotNil(t, stats.EndedAt)

	// Counters are frozen once ended.
	assert.Error(t, s.UpdateLearningSession(id, 1, 0, 0))
}

func TestCloseAbandonedSessions(t *testing.T) {
	s := openTestStore(t)

	orphan, err := s.StartLearningSession()
	require.NoError(t, err)

	n, err := s.CloseAbandonedSessions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := s.GetSessionStats(orphan)
	require.NoError(t, err)
	assert.True(t, stats.Aborted)
	assert.NotNil(t, stats.EndedAt)

	// Nothing left to close.
	n, err = s.CloseAbandonedSessions()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetSessionStatsMissing(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.GetSessionStats(999)
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestGetDatabaseStats(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddTopicsBatch([]Topic{
		{Name: "one", Source: SourceDictionary},
		{Name: "two", Source: SourceTrending},
	})
	require.NoError(t, err)
	topic, err := s.GetTopicByName("one")
	require.NoError(t, err)
	_, _, err = s.AddKnowledgeBatch([]KnowledgeItem{
		{TopicID: topic.ID, Title: "t", Content: "some stored content here", SourceAdapter: "encyclopedia"},
	})
	require.NoError(t, err)
	require.NoError(t, s.RecordUserQuery("q", nil, false))
	_, err = s.StartLearningSession()
	require.NoError(t, err)

	stats, err := s.GetDatabaseStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTopics)
	assert.Equal(t, int64(2), stats.TopicsByStatus["pending"])
	assert.Equal(t, int64(1), stats.TotalKnowledge)
	assert.Equal(t, int64(1), stats.TotalUserQueries)
	assert.Equal(t, int64(1), stats.TotalSessions)
	assert.Equal(t, int64(2), stats.TopicsLast24h)
	assert.Equal(t, int64(1), stats.KnowledgeLast24h)
	assert.Equal(t, int64(1), stats.UserQueriesLast24h)
}

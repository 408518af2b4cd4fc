// Package scheduler decides which topic the workers learn next. Topics come
// from four weighted source buckets; a random draw picks the bucket and the
// store's atomic claim picks the topic within it.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"thorlearn/internal/config"
	"thorlearn/internal/logging"
	"thorlearn/internal/store"
)

// TrendingProvider supplies externally trending topic names. Optional; the
// trending bucket falls through when no provider is configured.
type TrendingProvider interface {
	Trending(ctx context.Context, n int) ([]string, error)
}

// Scheduler implements the mixed-source topic policy.
type Scheduler struct {
	store    *store.KnowledgeStore
	cfg      config.SchedulerConfig
	trending TrendingProvider

	mu   sync.Mutex
	roll func() float64 // injectable for deterministic tests
}

// New creates a scheduler. trending may be nil.
func New(st *store.KnowledgeStore, cfg config.SchedulerConfig, trending TrendingProvider) *Scheduler {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Scheduler{
		store:    st,
		cfg:      cfg,
		trending: trending,
		roll:     rng.Float64,
	}
}

// SetRoll replaces the random source. Tests use this to force buckets.
func (s *Scheduler) SetRoll(roll func() float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll = roll
}

// Seed loads the bootstrap dictionary and upserts its topics. Idempotent:
// re-seeding an unchanged dictionary adds nothing.
func (s *Scheduler) Seed() error {
	dict, err := LoadDictionary(s.cfg.DictionaryPath)
	if err != nil {
		return err
	}

	var topics []store.Topic
	for _, entry := range dict.Entries() {
		topics = append(topics, store.Topic{
			Name:     entry[0],
			Category: entry[1],
			Source:   store.SourceDictionary,
		})
	}

	added, existing, err := s.store.AddTopicsBatch(topics)
	if err != nil {
		return err
	}
	logging.Scheduler("dictionary seed: %d added, %d existing", added, existing)
	return nil
}

// Next picks the source bucket by weighted draw, promotes pending work into
// it where the bucket requires that (user queries, trending), and claims a
// topic. An empty bucket falls through to a claim across all sources.
// Returns store.ErrNoTopics when the whole store is drained.
func (s *Scheduler) Next(ctx context.Context) (*store.Topic, error) {
	bucket := s.pickBucket()

	switch bucket {
	case store.SourceUserQuery:
		s.promoteUserQueries()
	case store.SourceTrending:
		s.promoteTrending(ctx)
	}

	topic, err := s.store.GetNextTopicFromSource(bucket)
	if err == nil {
		logging.SchedulerDebug("bucket %s -> topic %d %q", bucket, topic.ID, topic.Name)
		return topic, nil
	}
	if !errors.Is(err, store.ErrNoTopics) {
		return nil, err
	}

	// Bucket is empty; take whatever is most urgent anywhere.
	topic, err = s.store.GetNextTopic()
	if err != nil {
		return nil, err
	}
	logging.SchedulerDebug("bucket %s empty, fell through to topic %d %q (source=%s)",
		bucket, topic.ID, topic.Name, topic.Source)
	return topic, nil
}

func (s *Scheduler) pickBucket() store.TopicSource {
	s.mu.Lock()
	r := s.roll()
	s.mu.Unlock()

	switch {
	case r < s.cfg.DictionaryWeight:
		return store.SourceDictionary
	case r < s.cfg.DictionaryWeight+s.cfg.UserQueryWeight:
		return store.SourceUserQuery
	case r < s.cfg.DictionaryWeight+s.cfg.UserQueryWeight+s.cfg.TrendingWeight:
		return store.SourceTrending
	default:
		return store.SourceDiscovered
	}
}

// promoteUserQueries turns unanswered query topics into claimable topics.
func (s *Scheduler) promoteUserQueries() {
	names, err := s.store.GetUnansweredTopics(s.cfg.UnansweredLimit)
	if err != nil {
		logging.SchedulerDebug("unanswered topic fetch failed: %v", err)
		return
	}
	if len(names) == 0 {
		return
	}

	var topics []store.Topic
	for _, name := range names {
		topics = append(topics, store.Topic{
			Name:     name,
			Category: CategorizeTopic(name),
			Source:   store.SourceUserQuery,
			Priority: store.DefaultPriority(store.SourceUserQuery),
		})
	}
	if added, _, err := s.store.AddTopicsBatch(topics); err != nil {
		logging.SchedulerDebug("user-query promotion failed: %v", err)
	} else if added > 0 {
		logging.Scheduler("promoted %d user-query topics", added)
	}
}

// promoteTrending pulls up to 10 trending names from the provider.
func (s *Scheduler) promoteTrending(ctx context.Context) {
	if s.trending == nil {
		return
	}
	names, err := s.trending.Trending(ctx, 10)
	if err != nil {
		logging.SchedulerDebug("trending fetch failed: %v", err)
		return
	}
	if len(names) == 0 {
		return
	}

	var topics []store.Topic
	for _, name := range names {
		topics = append(topics, store.Topic{
			Name:     name,
			Category: CategorizeTopic(name),
			Source:   store.SourceTrending,
			Priority: store.DefaultPriority(store.SourceTrending),
		})
	}
	if added, _, err := s.store.AddTopicsBatch(topics); err != nil {
		logging.SchedulerDebug("trending promotion failed: %v", err)
	} else if added > 0 {
		logging.Scheduler("promoted %d trending topics", added)
	}
}

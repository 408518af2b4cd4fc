// Package config holds all thorlearn configuration: the knowledge store
// path, search adapter settings, scheduler weights, and worker pool sizing.
// Config is loaded from YAML, overridden by environment variables, and
// validated before the learner starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all thorlearn configuration.
type Config struct {
	// Workspace is the directory holding the store, PID file, and logs.
	Workspace string `yaml:"workspace"`

	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Learner   LearnerConfig   `yaml:"learner"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig configures the knowledge store.
type StoreConfig struct {
	// DatabasePath is the SQLite file (":memory:" for tests).
	DatabasePath string `yaml:"database_path"`

	// StaleClaimTimeout is how long an in_progress claim may sit before the
	// startup sweeper returns it to pending.
	StaleClaimTimeout time.Duration `yaml:"stale_claim_timeout"`

	// BusyRetries bounds retries of writes that hit store contention.
	BusyRetries int `yaml:"busy_retries"`
}

// SearchConfig configures the multi-engine retriever.
type SearchConfig struct {
	// AdapterTimeout bounds each adapter call independently.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// MinInterval is the default politeness gap between requests per source.
	MinInterval time.Duration `yaml:"min_interval"`

	// PerSourceInterval overrides MinInterval for specific adapters.
	PerSourceInterval map[string]time.Duration `yaml:"per_source_interval"`

	// TopK is the default result count; comparison queries use TopKComparison.
	TopK           int `yaml:"top_k"`
	TopKComparison int `yaml:"top_k_comparison"`

	// PerSourceCap bounds one adapter's contribution under diversity sampling.
	PerSourceCap int `yaml:"per_source_cap"`

	// MinContentChars is the acceptability floor for candidate bodies.
	MinContentChars int `yaml:"min_content_chars"`

	// UserAgent sent on HTML engine requests.
	UserAgent string `yaml:"user_agent"`

	// BraveAPIKey / SerpAPIKey enable the paid adapters when non-empty.
	BraveAPIKey string `yaml:"brave_api_key"`
	SerpAPIKey  string `yaml:"serpapi_key"`
}

// SchedulerConfig configures the mixed-source topic policy.
type SchedulerConfig struct {
	// DictionaryPath is the YAML bootstrap dictionary; a missing file falls
	// back to a small built-in list.
	DictionaryPath string `yaml:"dictionary_path"`

	// WatchDictionary re-seeds when the dictionary file changes on disk.
	WatchDictionary bool `yaml:"watch_dictionary"`

	// Source weights; must sum to 1.0.
	DictionaryWeight float64 `yaml:"dictionary_weight"`
	UserQueryWeight  float64 `yaml:"user_query_weight"`
	TrendingWeight   float64 `yaml:"trending_weight"`
	DiscoveredWeight float64 `yaml:"discovered_weight"`

	// UnansweredLimit caps user-query promotion per scheduling decision.
	UnansweredLimit int `yaml:"unanswered_limit"`
}

// LearnerConfig configures the worker pool and lifecycle controller.
type LearnerConfig struct {
	Workers        int           `yaml:"workers"`
	SearchInterval time.Duration `yaml:"search_interval"`

	// ErrorBackoffThreshold is how many consecutive loop-level errors are
	// tolerated before the backoff sleep kicks in.
	ErrorBackoffThreshold int           `yaml:"error_backoff_threshold"`
	MaxBackoff            time.Duration `yaml:"max_backoff"`

	// ShutdownDeadline bounds how long Stop waits for in-flight work.
	ShutdownDeadline time.Duration `yaml:"shutdown_deadline"`

	// MaxTopicAttempts is the retry cap before an error topic stays terminal.
	MaxTopicAttempts int `yaml:"max_topic_attempts"`

	// RetryBackoff is the base window before an errored topic is requeued;
	// the window doubles per attempt up to MaxBackoff.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RelatedTopicCap bounds related-topic extraction per crawled topic.
	RelatedTopicCap int `yaml:"related_topic_cap"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",
		Store: StoreConfig{
			DatabasePath:      filepath.Join(".thor", "knowledge.db"),
			StaleClaimTimeout: 30 * time.Minute,
			BusyRetries:       3,
		},
		Search: SearchConfig{
			AdapterTimeout:  10 * time.Second,
			MinInterval:     500 * time.Millisecond,
			TopK:            6,
			TopKComparison:  8,
			PerSourceCap:    2,
			MinContentChars: 40,
			UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		},
		Scheduler: SchedulerConfig{
			DictionaryPath:   filepath.Join(".thor", "dictionary.yaml"),
			WatchDictionary:  true,
			DictionaryWeight: 0.50,
			UserQueryWeight:  0.30,
			TrendingWeight:   0.15,
			DiscoveredWeight: 0.05,
			UnansweredLimit:  10,
		},
		Learner: LearnerConfig{
			Workers:               4,
			SearchInterval:        5 * time.Second,
			ErrorBackoffThreshold: 3,
			MaxBackoff:            300 * time.Second,
			ShutdownDeadline:      30 * time.Second,
			MaxTopicAttempts:      5,
			RetryBackoff:          time.Minute,
			RelatedTopicCap:       5,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads config from a YAML file, layering it over defaults.
// A missing file is not an error; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides layers environment variables over the loaded config.
// Paid search keys are env-only in most deployments.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BRAVE_SEARCH_API_KEY"); v != "" {
		c.Search.BraveAPIKey = v
	}
	if v := os.Getenv("SERPAPI_API_KEY"); v != "" {
		c.Search.SerpAPIKey = v
	}
	if v := os.Getenv("THOR_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("THOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Learner.Workers = n
		}
	}
	if v := os.Getenv("THOR_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Learner.Workers < 1 {
		return fmt.Errorf("learner.workers must be >= 1")
	}
	if c.Search.TopK < 1 || c.Search.TopKComparison < c.Search.TopK {
		return fmt.Errorf("search.top_k must be >= 1 and <= top_k_comparison")
	}
	if c.Search.AdapterTimeout <= 0 {
		return fmt.Errorf("search.adapter_timeout must be positive")
	}
	sum := c.Scheduler.DictionaryWeight + c.Scheduler.UserQueryWeight +
		c.Scheduler.TrendingWeight + c.Scheduler.DiscoveredWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scheduler source weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

// SourceInterval returns the politeness interval for an adapter key.
func (c *SearchConfig) SourceInterval(key string) time.Duration {
	if d, ok := c.PerSourceInterval[key]; ok && d > 0 {
		return d
	}
	return c.MinInterval
}

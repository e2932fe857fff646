package model

import "time"

// Config is the complete configuration for a run. It is built explicitly
// (DefaultConfig, then file/env/flags) and passed to the components that
// need it; nothing reads configuration from package state.
type Config struct {
	Sources    SourcesConfig              `yaml:"sources" mapstructure:"sources"`
	Policies   map[string]IngestionPolicy `yaml:"policies,omitempty" mapstructure:"policies"` // Overrides/additions by category
	Classifier ClassifierConfig           `yaml:"classifier" mapstructure:"classifier"`
	Ingest     IngestConfig               `yaml:"ingest" mapstructure:"ingest"`
	HTTP       HTTPConfig                 `yaml:"http" mapstructure:"http"`
	Cache      CacheConfig                `yaml:"cache" mapstructure:"cache"`
	Normalize  NormalizeConfig            `yaml:"normalize" mapstructure:"normalize"`
	Analysis   AnalysisConfig             `yaml:"analysis" mapstructure:"analysis"`
	Verify     VerifyConfig               `yaml:"verify" mapstructure:"verify"`
	LLM        LLMConfig                  `yaml:"llm" mapstructure:"llm"`
	Logging    LoggingConfig              `yaml:"logging" mapstructure:"logging"`
	Output     OutputConfig               `yaml:"output" mapstructure:"output"`
}

// SourcesConfig points at the source registry and extra entry files
type SourcesConfig struct {
	FeedsFile   string   `yaml:"feeds_file" mapstructure:"feeds_file"`
	EntryFiles  []string `yaml:"entry_files,omitempty" mapstructure:"entry_files"` // JSON RawEntry exports (e.g. mailbox)
	FeedWorkers int      `yaml:"feed_workers" mapstructure:"feed_workers"`
}

// ClassifierConfig assigns categories to sources that declare none
type ClassifierConfig struct {
	HostCategories   map[string]string `yaml:"host_categories,omitempty" mapstructure:"host_categories"`     // exact host -> category
	SuffixCategories map[string]string `yaml:"suffix_categories,omitempty" mapstructure:"suffix_categories"` // host suffix -> category
}

// IngestConfig controls full-article fetching during the merge
type IngestConfig struct {
	FetchWorkers int           `yaml:"fetch_workers" mapstructure:"fetch_workers"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoff  time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	MinFetched   int           `yaml:"min_fetched_length" mapstructure:"min_fetched_length"` // Extracted text must be longer than this
}

// HTTPConfig holds outbound HTTP settings
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // Per host
	BurstSize         int           `yaml:"burst_size" mapstructure:"burst_size"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls caching of fetched article bodies
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// NormalizeConfig controls the post-merge quality filter
type NormalizeConfig struct {
	Skip           bool   `yaml:"skip" mapstructure:"skip"`
	Frequency      string `yaml:"frequency" mapstructure:"frequency"`         // daily, weekly, biweekly, monthly
	LookbackDays   int    `yaml:"lookback_days" mapstructure:"lookback_days"` // Overrides frequency when > 0
	MinTitleLength int    `yaml:"min_title_length" mapstructure:"min_title_length"`
}

// AnalysisConfig controls claim extraction
type AnalysisConfig struct {
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxContentChars int    `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	Instructions    string `yaml:"instructions,omitempty" mapstructure:"instructions"`
}

// VerifyConfig controls confidence verification
type VerifyConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	EvidenceMaxChars int `yaml:"evidence_max_chars" mapstructure:"evidence_max_chars"`
}

// LLMConfig selects the model provider behind the oracles
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"` // Never written to disk
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"` // development or production
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// OutputConfig controls where run artifacts are written
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	JSON     bool   `yaml:"json" mapstructure:"json"`
	Markdown bool   `yaml:"markdown" mapstructure:"markdown"`
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			FeedsFile:   "config/rss_feeds.yaml",
			FeedWorkers: 8,
		},
		Classifier: ClassifierConfig{
			SuffixCategories: map[string]string{
				".gov": string(CategoryPressRelease),
			},
		},
		Ingest: IngestConfig{
			FetchWorkers: 4,
			MaxRetries:   3,
			BaseBackoff:  time.Second,
			MinFetched:   100,
		},
		HTTP: HTTPConfig{
			Timeout:           20 * time.Second,
			UserAgent:         "Mozilla/5.0 (compatible; Corroborate/0.1)",
			MaxBodyBytes:      5_000_000,
			RespectRobots:     true,
			RequestsPerSecond: 1,
			BurstSize:         2,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".corroborate/cache",
			MemoryTTL: time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		Normalize: NormalizeConfig{
			Frequency:      "weekly",
			MinTitleLength: 10,
		},
		Analysis: AnalysisConfig{
			BatchSize:       50,
			MaxContentChars: 5000,
		},
		Verify: VerifyConfig{
			Concurrency:      4,
			EvidenceMaxChars: 4000,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   60,
			MaxTokens: 4000,
		},
		Logging: LoggingConfig{
			Mode: "development",
		},
		Output: OutputConfig{
			Dir:      "./corroborate-runs",
			JSON:     true,
			Markdown: true,
		},
	}
}

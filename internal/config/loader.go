// Package config loads run configuration from defaults, a YAML file and
// CORROBORATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/corroborate/internal/model"
)

const (
	envPrefix = "CORROBORATE"

	// Nested keys are joined with "::" so host names such as ".gov" can be
	// used as map keys in the classifier section
	keyDelimiter = "::"
)

// Loader builds a model.Config. Every call to Load or Reload returns a new
// value; nothing is cached between calls.
type Loader struct {
	path      string
	overrides map[string]interface{}
	used      string
}

// NewLoader creates a loader for the given file. An empty path searches
// $HOME/.corroborate/config.yaml and tolerates its absence.
func NewLoader(path string) *Loader {
	return &Loader{path: path, overrides: make(map[string]interface{})}
}

// Override sets a value that wins over file and environment, e.g. from a
// CLI flag. Keys use the YAML section names: "llm.model".
func (l *Loader) Override(key string, value interface{}) {
	l.overrides[strings.ReplaceAll(key, ".", keyDelimiter)] = value
}

// ConfigFileUsed returns the file read by the last Load, if any
func (l *Loader) ConfigFileUsed() string {
	return l.used
}

// Load reads the configuration
func (l *Loader) Load() (*model.Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	// Secrets have no default, so AutomaticEnv alone would not see them
	_ = v.BindEnv("llm" + keyDelimiter + "api_key")

	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".corroborate"))
		}
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	l.used = ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		l.used = v.ConfigFileUsed()
	}

	for key, value := range l.overrides {
		v.Set(key, value)
	}

	cfg := &model.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyProviderEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload re-reads the file and environment and returns a fresh value
func (l *Loader) Reload() (*model.Config, error) {
	return l.Load()
}

// setDefaults registers every leaf of DefaultConfig, which also makes each
// key visible to AutomaticEnv
func setDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}

	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for key, value := range node {
			full := key
			if prefix != "" {
				full = prefix + keyDelimiter + key
			}
			if child, ok := value.(map[string]interface{}); ok && len(child) > 0 {
				walk(full, child)
				continue
			}
			v.SetDefault(full, value)
		}
	}
	walk("", tree)

	return nil
}

// applyProviderEnv falls back to the provider's conventional variables
func applyProviderEnv(cfg *model.Config) {
	provider := strings.ToLower(cfg.LLM.Provider)

	if cfg.LLM.APIKey == "" {
		switch provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if cfg.LLM.BaseURL == "" && provider == "ollama" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
}

// Validate rejects settings no run can work with
func Validate(cfg *model.Config) error {
	var problems []string

	if cfg.Sources.FeedWorkers < 1 {
		problems = append(problems, "sources.feed_workers must be at least 1")
	}
	if cfg.Ingest.FetchWorkers < 1 {
		problems = append(problems, "ingest.fetch_workers must be at least 1")
	}
	if cfg.Ingest.MaxRetries < 1 {
		problems = append(problems, "ingest.max_retries must be at least 1")
	}
	if cfg.Analysis.BatchSize < 1 {
		problems = append(problems, "analysis.batch_size must be at least 1")
	}
	if cfg.Verify.Concurrency < 1 {
		problems = append(problems, "verify.concurrency must be at least 1")
	}
	for name, p := range cfg.Policies {
		if p.Tier < 1 {
			problems = append(problems, fmt.Sprintf("policies.%s.tier must be at least 1", name))
		}
		if p.MinContentLength < 0 {
			problems = append(problems, fmt.Sprintf("policies.%s.min_content_length must not be negative", name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

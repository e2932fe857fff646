// Package cache stores fetched article text between runs so repeated
// briefings do not refetch the same pages.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a namespaced cache key from a URL
func Key(namespace, url string) string {
	hash := sha256.Sum256([]byte(url))
	return "corroborate:" + namespace + ":v1:" + hex.EncodeToString(hash[:])
}

// Article is a cached full-article fetch
type Article struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url,omitempty"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ArticleStore keeps extracted article text keyed by URL
type ArticleStore struct {
	cache Cache
	ttl   time.Duration
}

// NewArticleStore wraps a cache. A nil cache stores nothing.
func NewArticleStore(c Cache, ttl time.Duration) *ArticleStore {
	return &ArticleStore{cache: c, ttl: ttl}
}

// Get returns the cached article for a URL
func (s *ArticleStore) Get(url string) (*Article, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}
	data, ok := s.cache.Get(Key("article", url))
	if !ok {
		return nil, false
	}
	var a Article
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, false
	}
	return &a, true
}

// Put stores an article
func (s *ArticleStore) Put(a Article) error {
	if s == nil || s.cache == nil {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.cache.Set(Key("article", a.URL), data, s.ttl)
}

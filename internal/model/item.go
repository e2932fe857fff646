package model

import (
	"time"
	"unicode/utf8"
)

// Provenance records where an item's content body came from
type Provenance string

const (
	ProvenanceFeed         Provenance = "feed"          // Supplied by the feed or mailbox entry
	ProvenanceFullArticle  Provenance = "full_article"  // Fetched from the article URL
	ProvenanceFeedFallback Provenance = "feed_fallback" // Fetch failed, feed content kept
)

// FetchStatus is the outcome of a full-article fetch attempt
type FetchStatus string

const (
	FetchNone    FetchStatus = ""
	FetchSuccess FetchStatus = "success"
	FetchFailed  FetchStatus = "failed"
)

// RawEntry is one article as seen through one source
type RawEntry struct {
	Key        string     `json:"key"` // Resolved article URL
	Publisher  string     `json:"publisher"`
	Category   Category   `json:"category"`
	Title      string     `json:"title"`
	Published  *time.Time `json:"published,omitempty"` // nil when absent or unparseable
	Content    string     `json:"content"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// ContentLength returns the content length in characters
func (e *RawEntry) ContentLength() int {
	return utf8.RuneCountInString(e.Content)
}

// MergedItem is the deduplicated record for one article
type MergedItem struct {
	Key              string      `json:"key"`
	Publishers       []string    `json:"publishers"`
	Categories       []Category  `json:"categories"`
	Tier             int         `json:"tier"`
	FetchFullArticle bool        `json:"fetch_full_article"`
	Title            string      `json:"title"`
	Published        *time.Time  `json:"published,omitempty"`
	Content          string      `json:"content"`
	Provenance       Provenance  `json:"provenance"`
	FetchStatus      FetchStatus `json:"fetch_status,omitempty"`
	FetchError       string      `json:"fetch_error,omitempty"`
	DiscoveredRun    string      `json:"discovered_run"`
}

// ContentLength returns the content length in characters
func (m *MergedItem) ContentLength() int {
	return utf8.RuneCountInString(m.Content)
}

// HasPublisher reports whether the publisher already contributed to the item
func (m *MergedItem) HasPublisher(publisher string) bool {
	for _, p := range m.Publishers {
		if p == publisher {
			return true
		}
	}
	return false
}

// HasCategory reports whether the category already contributed to the item
func (m *MergedItem) HasCategory(category Category) bool {
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// IndexItems builds a key lookup over a merged item set
func IndexItems(items []MergedItem) map[string]*MergedItem {
	index := make(map[string]*MergedItem, len(items))
	for i := range items {
		index[items[i].Key] = &items[i]
	}
	return index
}

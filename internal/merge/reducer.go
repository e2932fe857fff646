// Package merge folds raw entries that describe the same article into one
// deduplicated item per resolved URL.
package merge

import (
	"strings"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
)

// PolicyResolver returns the ingestion policy for a category.
// policy.Table satisfies it.
type PolicyResolver interface {
	Resolve(category model.Category) model.IngestionPolicy
}

// Decision describes what Add did with one entry
type Decision struct {
	Created  bool   // A new item was seeded from the entry
	Replaced bool   // The entry's content replaced the item's content
	Reason   string // Rejection or merge reason, empty on creation
}

// Rejected reports whether the entry was dropped
func (d Decision) Rejected() bool {
	return !d.Created && d.Reason != model.ReasonDuplicateMerged
}

// Reducer is the single-threaded fold over raw entries. It is not safe for
// concurrent use; callers serialize entries into it in a fixed order.
type Reducer struct {
	policies PolicyResolver
	runID    string
	rec      *audit.Recorder

	index map[string]int
	items []model.MergedItem
}

// NewReducer creates an empty reducer
func NewReducer(policies PolicyResolver, rec *audit.Recorder) *Reducer {
	if rec == nil {
		rec = audit.Discard()
	}
	return &Reducer{
		policies: policies,
		runID:    rec.RunID(),
		rec:      rec,
		index:    make(map[string]int),
	}
}

// Check returns the rejection reason for an entry, or "" when the entry is
// acceptable. Content checks apply to every entry, known key or not; the
// title check only guards item creation.
func (r *Reducer) Check(entry model.RawEntry) string {
	if strings.TrimSpace(entry.Key) == "" {
		return model.ReasonEmptyKey
	}
	if strings.TrimSpace(entry.Content) == "" {
		return model.ReasonEmptyContent
	}
	if entry.ContentLength() < r.policies.Resolve(categoryOf(entry)).MinContentLength {
		return model.ReasonTooShort
	}
	if _, known := r.index[entry.Key]; !known && strings.TrimSpace(entry.Title) == "" {
		return model.ReasonEmptyTitle
	}
	return ""
}

// Add folds one entry into the item set
func (r *Reducer) Add(entry model.RawEntry) Decision {
	if reason := r.Check(entry); reason != "" {
		r.rec.Count(reason)
		r.rec.Event("merge", "entry.rejected", "key", entry.Key, "publisher", entry.Publisher, "reason", reason)
		return Decision{Reason: reason}
	}

	category := categoryOf(entry)
	p := r.policies.Resolve(category)

	idx, known := r.index[entry.Key]
	if !known {
		provenance := entry.Provenance
		if provenance == "" {
			provenance = model.ProvenanceFeed
		}
		item := model.MergedItem{
			Key:              entry.Key,
			Tier:             p.Tier,
			FetchFullArticle: p.FetchFullArticle,
			Title:            entry.Title,
			Published:        entry.Published,
			Content:          entry.Content,
			Provenance:       provenance,
			DiscoveredRun:    r.runID,
		}
		if entry.Publisher != "" {
			item.Publishers = []string{entry.Publisher}
		}
		item.Categories = []model.Category{category}

		r.index[entry.Key] = len(r.items)
		r.items = append(r.items, item)
		r.rec.Event("merge", "item.created", "key", entry.Key, "publisher", entry.Publisher, "tier", p.Tier)
		return Decision{Created: true}
	}

	item := &r.items[idx]
	if entry.Publisher != "" && !item.HasPublisher(entry.Publisher) {
		item.Publishers = append(item.Publishers, entry.Publisher)
	}
	if !item.HasCategory(category) {
		item.Categories = append(item.Categories, category)
	}
	if p.Tier < item.Tier {
		item.Tier = p.Tier
	}
	item.FetchFullArticle = item.FetchFullArticle || p.FetchFullArticle

	replaced := false
	if entry.ContentLength() > item.ContentLength() {
		item.Content = entry.Content
		if strings.TrimSpace(entry.Title) != "" {
			item.Title = entry.Title
		}
		item.Published = entry.Published
		if entry.Provenance != "" {
			item.Provenance = entry.Provenance
		} else {
			item.Provenance = model.ProvenanceFeed
		}
		replaced = true
	}

	r.rec.Count(model.ReasonDuplicateMerged)
	r.rec.Event("merge", "entry.merged",
		"key", entry.Key,
		"publisher", entry.Publisher,
		"tier", item.Tier,
		"content_replaced", replaced,
	)
	return Decision{Replaced: replaced, Reason: model.ReasonDuplicateMerged}
}

// ApplyFetch records the full-article fetch outcome for an item. A fetched
// body replaces the feed-supplied body; a failure keeps the feed body and
// marks it as a fallback.
func (r *Reducer) ApplyFetch(key string, content string, fetchErr error) {
	idx, ok := r.index[key]
	if !ok {
		return
	}
	item := &r.items[idx]

	if fetchErr != nil {
		item.FetchStatus = model.FetchFailed
		item.FetchError = fetchErr.Error()
		item.Provenance = model.ProvenanceFeedFallback
		return
	}

	item.Content = content
	item.FetchStatus = model.FetchSuccess
	item.FetchError = ""
	item.Provenance = model.ProvenanceFullArticle
}

// Lookup returns the current state of an item
func (r *Reducer) Lookup(key string) (model.MergedItem, bool) {
	idx, ok := r.index[key]
	if !ok {
		return model.MergedItem{}, false
	}
	return r.items[idx], true
}

// Len returns the number of items
func (r *Reducer) Len() int {
	return len(r.items)
}

// Items returns the merged items in order of first appearance
func (r *Reducer) Items() []model.MergedItem {
	out := make([]model.MergedItem, len(r.items))
	for i, item := range r.items {
		item.Publishers = append([]string(nil), item.Publishers...)
		item.Categories = append([]model.Category(nil), item.Categories...)
		out[i] = item
	}
	return out
}

func categoryOf(entry model.RawEntry) model.Category {
	if entry.Category == "" {
		return model.CategoryUnknown
	}
	return entry.Category
}

// Package normalize drops merged items that are too old, badly titled or
// repeat an earlier headline before they reach claim extraction.
package normalize

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
)

// frequencyDays maps a briefing frequency to its lookback window
var frequencyDays = map[string]int{
	"daily":    1,
	"weekly":   7,
	"biweekly": 14,
	"monthly":  30,
}

// LookbackDays resolves the lookback window for a config. An explicit
// lookback wins; unknown frequencies fall back to weekly.
func LookbackDays(cfg model.NormalizeConfig) int {
	if cfg.LookbackDays > 0 {
		return cfg.LookbackDays
	}
	if days, ok := frequencyDays[strings.ToLower(strings.TrimSpace(cfg.Frequency))]; ok {
		return days
	}
	return frequencyDays["weekly"]
}

// Filter is the post-merge quality filter
type Filter struct {
	lookback       time.Duration
	minTitleLength int
	rec            *audit.Recorder
	now            func() time.Time
}

// NewFilter creates a filter from config
func NewFilter(cfg model.NormalizeConfig, rec *audit.Recorder) *Filter {
	if rec == nil {
		rec = audit.Discard()
	}
	return &Filter{
		lookback:       time.Duration(LookbackDays(cfg)) * 24 * time.Hour,
		minTitleLength: cfg.MinTitleLength,
		rec:            rec,
		now:            time.Now,
	}
}

// SetNow replaces the clock used for the lookback cutoff
func (f *Filter) SetNow(now func() time.Time) {
	if now != nil {
		f.now = now
	}
}

// Apply returns the items that pass, in their original order. Items without
// a published time are kept.
func (f *Filter) Apply(items []model.MergedItem) []model.MergedItem {
	cutoff := f.now().Add(-f.lookback)
	seenTitles := make(map[string]bool, len(items))
	kept := make([]model.MergedItem, 0, len(items))

	for _, item := range items {
		reason := f.check(item, cutoff, seenTitles)
		if reason != "" {
			f.rec.Count(reason)
			f.rec.Event("normalize", "item.dropped", "key", item.Key, "reason", reason)
			continue
		}
		seenTitles[titleKey(item.Title)] = true
		kept = append(kept, item)
	}

	f.rec.Event("normalize", "complete", "items_in", len(items), "items_out", len(kept), "lookback", f.lookback.String())
	return kept
}

func (f *Filter) check(item model.MergedItem, cutoff time.Time, seen map[string]bool) string {
	if item.Published != nil && item.Published.Before(cutoff) {
		return model.ReasonFilteredOld
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return model.ReasonFilteredNoTitle
	}
	if utf8.RuneCountInString(title) < f.minTitleLength {
		return model.ReasonFilteredShortTitle
	}
	if seen[titleKey(title)] {
		return model.ReasonFilteredDupTitle
	}
	return ""
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

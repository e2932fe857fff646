package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/corroborate/internal/feeds"
	"github.com/ppiankov/corroborate/internal/llm"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/policy"
	"github.com/ppiankov/corroborate/internal/topics"
	"github.com/ppiankov/corroborate/internal/verify"
)

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type stubReader struct {
	entries map[string][]model.RawEntry
	fail    map[string]bool
}

func (s *stubReader) Read(ctx context.Context, src model.SourceDescriptor) ([]model.RawEntry, error) {
	if s.fail[src.Name] {
		return nil, errors.New("feed unavailable")
	}
	out := make([]model.RawEntry, 0, len(s.entries[src.Name]))
	for _, e := range s.entries[src.Name] {
		e.Publisher = src.Name
		e.Category = src.Category
		out = append(out, e)
	}
	return out, nil
}

type stubExtractor struct {
	claims []model.Claim
	seen   int
}

func (s *stubExtractor) ExtractClaims(ctx context.Context, items []model.MergedItem) (*llm.Extraction, error) {
	s.seen = len(items)
	claims := make([]model.Claim, len(s.claims))
	copy(claims, s.claims)
	return &llm.Extraction{Claims: claims, Batches: 1, FailedBatches: 1, InvalidClaims: 2}, nil
}

type stubGrouper struct {
	mapping map[string]string
	err     error
}

func (s *stubGrouper) GroupTopics(ctx context.Context, ids []string) (map[string]string, error) {
	return s.mapping, s.err
}

type keywordJudge struct {
	mu      sync.Mutex
	queries []verify.ContestationQuery
}

func (j *keywordJudge) IsContested(ctx context.Context, q verify.ContestationQuery) (bool, error) {
	j.mu.Lock()
	j.queries = append(j.queries, q)
	j.mu.Unlock()
	return strings.Contains(q.ClaimText, "doubt"), nil
}

func body(s string) string {
	return strings.Repeat(s+" ", 20)
}

func testRegistry(t *testing.T) *policy.Registry {
	t.Helper()
	registry, err := policy.NewRegistry([]model.SourceDescriptor{
		{Name: "Wire", URL: "https://wire.example/feed", Category: model.CategoryNews},
		{Name: "Vendor Blog", URL: "https://vendor.example/rss", Category: model.CategoryVendorBlog},
	}, policy.DefaultTable(), nil)
	require.NoError(t, err)
	return registry
}

func testEntries() map[string][]model.RawEntry {
	published := fixedNow.Add(-time.Hour)
	return map[string][]model.RawEntry{
		"Wire": {
			{Key: "https://x.example/1", Title: "Vendor X launches model Y", Content: body("short"), Published: &published},
		},
		"Vendor Blog": {
			{Key: "https://x.example/1", Title: "Vendor X launches model Y", Content: body("a much longer body"), Published: &published},
			{Key: "https://x.example/2", Title: "Analysts question the launch", Content: body("analysts"), Published: &published},
		},
	}
}

func testClaims() []model.Claim {
	return []model.Claim{
		{Text: "Vendor X launched model Y", Confidence: model.ConfidenceReported,
			SourceIDs: []string{"https://x.example/1", "https://x.example/2"}, TopicID: "vendor-x-launch"},
		{Text: "Analysts doubt the launch", Confidence: model.ConfidenceReported,
			SourceIDs: []string{"https://x.example/2"}, TopicID: "vendorx_launch"},
		{Text: "Pricing may fall next year", Confidence: model.ConfidenceSpeculative,
			SourceIDs: []string{"https://x.example/1"}, TopicID: "pricing"},
	}
}

func newTestPipeline(t *testing.T, cfg *model.Config, deps Deps) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if deps.Registry == nil {
		deps.Registry = testRegistry(t)
	}
	p, err := New(cfg, deps)
	require.NoError(t, err)
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestRun_EndToEnd(t *testing.T) {
	extractor := &stubExtractor{claims: testClaims()}
	judge := &keywordJudge{}
	p := newTestPipeline(t, nil, Deps{
		Reader:    &stubReader{entries: testEntries()},
		Extractor: extractor,
		Grouper: &stubGrouper{mapping: map[string]string{
			"vendorx_launch":  "vendor-x-launch",
			"vendor-x-launch": "vendor-x-launch",
			"pricing":         "pricing",
		}},
		Judge: judge,
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, 2, extractor.seen)
	assert.Equal(t, []string{"Wire", "Vendor Blog"}, result.Items[0].Publishers)
	assert.Equal(t, 1, result.Items[0].Tier)
	assert.Equal(t, body("a much longer body"), result.Items[0].Content)

	require.Len(t, result.Claims, 3)
	assert.Equal(t, model.ConfidenceCorroborated, result.Claims[0].Confidence)
	assert.Equal(t, model.ConfidenceContested, result.Claims[1].Confidence)
	assert.Equal(t, "vendor-x-launch", result.Claims[1].TopicID)
	assert.Equal(t, model.ConfidenceSpeculative, result.Claims[2].Confidence)

	s := result.Summary
	assert.Regexp(t, `^briefing_20240501_080000_[0-9a-f]{8}$`, s.RunID)
	assert.Equal(t, 3, s.EntriesIn)
	assert.Equal(t, 2, s.ItemsOut)
	assert.Equal(t, 3, s.ClaimsOut)
	assert.Equal(t, 2, s.TopicsOut)
	assert.Equal(t, 1, s.TopicMerges)
	assert.Equal(t, 1, s.Confidence[model.ConfidenceCorroborated])
	assert.Equal(t, 1, s.Confidence[model.ConfidenceContested])
	assert.Equal(t, 1, s.Confidence[model.ConfidenceSpeculative])
	assert.Equal(t, 1, s.Counts[model.ReasonDuplicateMerged])
	assert.Equal(t, 1, s.Counts[model.ReasonExtractionFailed])
	assert.Equal(t, 2, s.Counts[model.ReasonClaimInvalid])

	for _, q := range judge.queries {
		assert.NotEmpty(t, q.Evidence, "judge is only asked when there is evidence")
	}
}

func TestRun_NoEntries(t *testing.T) {
	p := newTestPipeline(t, nil, Deps{
		Reader:    &stubReader{fail: map[string]bool{"Wire": true, "Vendor Blog": true}},
		Extractor: &stubExtractor{},
		Grouper:   &stubGrouper{},
		Judge:     &keywordJudge{},
	})

	result, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoEntries)
	assert.Nil(t, result)
}

func TestRun_MalformedMappingAbortsRun(t *testing.T) {
	judge := &keywordJudge{}
	p := newTestPipeline(t, nil, Deps{
		Reader:    &stubReader{entries: testEntries()},
		Extractor: &stubExtractor{claims: testClaims()},
		Grouper:   &stubGrouper{err: errors.New("not json")},
		Judge:     judge,
	})

	result, err := p.Run(context.Background())
	assert.ErrorIs(t, err, topics.ErrMalformedMapping)
	assert.Nil(t, result)
	assert.Empty(t, judge.queries, "verification never starts")
}

func TestRun_AllItemsFilteredYieldsEmptyRun(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Normalize.MinTitleLength = 200

	extractor := &stubExtractor{claims: testClaims()}
	p := newTestPipeline(t, cfg, Deps{
		Reader:    &stubReader{entries: testEntries()},
		Extractor: extractor,
		Grouper:   &stubGrouper{},
		Judge:     &keywordJudge{},
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Empty(t, result.Claims)
	assert.Equal(t, 0, extractor.seen)
	assert.Equal(t, 2, result.Summary.Counts[model.ReasonFilteredShortTitle])
}

func TestRun_RequiresOracles(t *testing.T) {
	p := newTestPipeline(t, nil, Deps{Reader: &stubReader{entries: testEntries()}})
	_, err := p.Run(context.Background())
	assert.Error(t, err)
}

func TestIngest_FeedFailuresAndEntryFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "mailbox.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
  {"key": "https://letter.example/12", "publisher": "Vendor Blog", "title": "Issue twelve of the letter", "content": "`+body("letter")+`"}
]`), 0o600))

	cfg := model.DefaultConfig()
	cfg.Sources.EntryFiles = []string{good, filepath.Join(dir, "missing.json")}
	cfg.Normalize.Skip = true

	p := newTestPipeline(t, cfg, Deps{
		Reader: &stubReader{entries: testEntries(), fail: map[string]bool{"Wire": true}},
	})

	result, err := p.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.EntriesIn)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "https://letter.example/12", result.Items[2].Key)
	assert.Equal(t, []model.Category{model.CategoryVendorBlog}, result.Items[2].Categories, "category taken from the registered publisher")
	assert.Equal(t, 2, result.Counts()[model.ReasonFeedFailed])
	assert.Equal(t, []string{model.ReasonFeedFailed}, result.Reasons())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)

	_, err = New(model.DefaultConfig(), Deps{Reader: &stubReader{}})
	assert.Error(t, err)

	_, err = New(model.DefaultConfig(), Deps{Registry: testRegistry(t)})
	assert.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	id := NewRunID(fixedNow)
	assert.Regexp(t, regexp.MustCompile(`^briefing_20240501_080000_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewRunID(fixedNow))
}

func TestIngest_LinklessFeedItemIsCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>Wire</title>
  <link>https://wire.example</link>
  <description>Wire</description>
  <item>
    <title>Vendor X launches model Y</title>
    <link>https://wire.example/story</link>
    <description>Vendor X released model Y on Monday.</description>
  </item>
  <item>
    <title>Story without a link</title>
    <description>This item has no link to key it by.</description>
  </item>
</channel></rss>`))
	}))
	defer server.Close()

	registry, err := policy.NewRegistry([]model.SourceDescriptor{
		{Name: "Wire", URL: server.URL, Category: model.CategoryNews},
	}, policy.DefaultTable(), nil)
	require.NoError(t, err)

	cfg := model.DefaultConfig()
	cfg.Normalize.Skip = true
	p := newTestPipeline(t, cfg, Deps{
		Registry: registry,
		Reader:   feeds.NewFeedReader(model.HTTPConfig{Timeout: 5 * time.Second}),
	})

	result, err := p.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.EntriesIn)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "https://wire.example/story", result.Items[0].Key)
	assert.Equal(t, 1, result.Counts()[model.ReasonEmptyKey])
}

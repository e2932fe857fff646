// Package pipeline wires ingestion, merging, claim extraction, topic
// canonicalization and verification into a single run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/cache"
	"github.com/ppiankov/corroborate/internal/feeds"
	"github.com/ppiankov/corroborate/internal/fetch"
	"github.com/ppiankov/corroborate/internal/llm"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/merge"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/normalize"
	"github.com/ppiankov/corroborate/internal/policy"
	"github.com/ppiankov/corroborate/internal/topics"
	"github.com/ppiankov/corroborate/internal/verify"
)

// ErrNoEntries is returned when ingestion produced nothing to merge
var ErrNoEntries = errors.New("no entries fetched from any source")

// Deps are the collaborators a pipeline runs against. Fetcher may be nil to
// disable full-article fetching; the three oracles are only needed by Run.
type Deps struct {
	Registry  *policy.Registry
	Reader    feeds.Reader
	Fetcher   merge.ArticleFetcher
	Extractor llm.ClaimExtractor
	Grouper   topics.Grouper
	Judge     verify.ContestationJudge
	Logger    *logging.Logger
}

// Pipeline orchestrates a complete run
type Pipeline struct {
	cfg  *model.Config
	deps Deps
	log  *logging.Logger
	now  func() time.Time
}

// IngestResult is the output of the ingestion half of a run
type IngestResult struct {
	RunID     string
	StartedAt time.Time
	EntriesIn int
	Items     []model.MergedItem
	rec       *audit.Recorder
}

// Counts returns the non-fatal conditions recorded during ingestion
func (r *IngestResult) Counts() map[string]int {
	return r.rec.Counts()
}

// Reasons returns the recorded reasons in sorted order
func (r *IngestResult) Reasons() []string {
	return r.rec.Reasons()
}

// New creates a pipeline from explicit collaborators
func New(cfg *model.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("source registry is required")
	}
	if deps.Reader == nil {
		return nil, fmt.Errorf("feed reader is required")
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: log, now: time.Now}, nil
}

// NewFromConfig builds the production collaborators: the registry from the
// feeds file, the gofeed reader, the HTTP article fetcher with its cache and
// the LLM-backed oracles. withOracles=false skips the LLM provider, which is
// enough for Ingest.
func NewFromConfig(cfg *model.Config, log *logging.Logger, withOracles bool) (*Pipeline, error) {
	if log == nil {
		log = logging.Nop()
	}

	table := policy.NewTable(cfg.Policies)
	registry, err := policy.LoadRegistry(cfg.Sources.FeedsFile, table, policy.NewClassifier(cfg.Classifier))
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	var store *cache.ArticleStore
	if cfg.Cache.Enabled {
		layered := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		store = cache.NewArticleStore(layered, cfg.Cache.DiskTTL)
	}

	deps := Deps{
		Registry: registry,
		Reader:   feeds.NewFeedReader(cfg.HTTP),
		Fetcher:  fetch.New(cfg.HTTP, cfg.Ingest.MinFetched, store).WithLogger(log),
		Logger:   log,
	}

	if withOracles {
		provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
		if err != nil {
			return nil, fmt.Errorf("create LLM provider: %w", err)
		}
		oracles := llm.NewOracles(provider, llm.OracleOptions{
			BatchSize:       cfg.Analysis.BatchSize,
			MaxContentChars: cfg.Analysis.MaxContentChars,
			Instructions:    cfg.Analysis.Instructions,
		}, log)
		deps.Extractor = oracles
		deps.Grouper = oracles
		deps.Judge = oracles
	}

	return New(cfg, deps)
}

// NewRunID returns an id of the form briefing_20240501_080000_1a2b3c4d
func NewRunID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("briefing_%s_%s", at.Format("20060102_150405"), suffix)
}

// Ingest reads every source, merges the entries and applies the quality
// filter. It needs no LLM.
func (p *Pipeline) Ingest(ctx context.Context) (*IngestResult, error) {
	started := p.now().UTC()
	runID := NewRunID(started)
	rec := audit.NewRecorder(runID, p.log)

	return p.ingest(ctx, runID, started, rec)
}

func (p *Pipeline) ingest(ctx context.Context, runID string, started time.Time, rec *audit.Recorder) (*IngestResult, error) {
	sources := p.deps.Registry.Sources()
	rec.Event("ingest", "run.started", "sources", len(sources), "entry_files", len(p.cfg.Sources.EntryFiles))

	collector := feeds.NewCollector(p.deps.Reader, p.cfg.Sources.FeedWorkers, rec)
	entries, err := collector.Collect(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("read feeds: %w", err)
	}

	for _, path := range p.cfg.Sources.EntryFiles {
		fileEntries, err := feeds.LoadEntriesFile(path)
		if err != nil {
			rec.Count(model.ReasonFeedFailed)
			rec.Warn("ingest", "entry_file.failed", "path", path, "error", err.Error())
			continue
		}
		entries = append(entries, p.categorize(fileEntries)...)
	}

	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	rec.Event("ingest", "entries.collected", "entries", len(entries))

	engine := merge.NewEngine(p.deps.Registry.Table(), p.deps.Fetcher, merge.Options{
		Workers:     p.cfg.Ingest.FetchWorkers,
		MaxRetries:  p.cfg.Ingest.MaxRetries,
		BaseBackoff: p.cfg.Ingest.BaseBackoff,
	}, rec)

	items, err := engine.Merge(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	rec.Event("merge", "merge.complete", "entries", len(entries), "items", len(items))

	if !p.cfg.Normalize.Skip {
		filter := normalize.NewFilter(p.cfg.Normalize, rec)
		filter.SetNow(p.now)
		items = filter.Apply(items)
	}

	return &IngestResult{
		RunID:     runID,
		StartedAt: started,
		EntriesIn: len(entries),
		Items:     items,
		rec:       rec,
	}, nil
}

// categorize gives entries from exported files the category of their
// registered publisher when they do not carry one
func (p *Pipeline) categorize(entries []model.RawEntry) []model.RawEntry {
	for i := range entries {
		if entries[i].Category != model.CategoryUnknown {
			continue
		}
		if src, ok := p.deps.Registry.Lookup(entries[i].Publisher); ok {
			entries[i].Category = src.Category
		}
	}
	return entries
}

// Run executes a complete run and returns its finalized output. Ingestion
// failures of single sources and oracle failures on single claims are
// counted in the summary; a malformed topic mapping or cancellation aborts
// the run with no partial result.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	if p.deps.Extractor == nil || p.deps.Grouper == nil || p.deps.Judge == nil {
		return nil, fmt.Errorf("claim extractor, topic grouper and contestation judge are required")
	}

	started := p.now().UTC()
	runID := NewRunID(started)
	rec := audit.NewRecorder(runID, p.log)

	ingested, err := p.ingest(ctx, runID, started, rec)
	if err != nil {
		return nil, err
	}
	items := ingested.Items

	var claims []model.Claim
	merges := 0
	if len(items) > 0 {
		extraction, err := p.deps.Extractor.ExtractClaims(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("extract claims: %w", err)
		}
		rec.Add(model.ReasonExtractionFailed, extraction.FailedBatches)
		rec.Add(model.ReasonClaimInvalid, extraction.InvalidClaims)
		rec.Event("analyze", "extraction.complete",
			"claims", len(extraction.Claims),
			"batches", extraction.Batches,
			"failed_batches", extraction.FailedBatches,
			"tokens", extraction.TokensUsed)
		claims = extraction.Claims

		canonicalizer := topics.NewCanonicalizer(p.deps.Grouper, rec)
		var mapping model.TopicMapping
		mapping, merges, err = canonicalizer.CanonicalizeClaims(ctx, claims)
		if err != nil {
			return nil, fmt.Errorf("canonicalize topics: %w", err)
		}
		rec.Event("topics", "mapping.applied", "identity", mapping.IsIdentity(), "rewritten", merges)

		verifier := verify.NewVerifier(p.deps.Judge, verify.Options{
			Concurrency:      p.cfg.Verify.Concurrency,
			EvidenceMaxChars: p.cfg.Verify.EvidenceMaxChars,
		}, rec)
		claims, err = verifier.Verify(ctx, claims, items)
		if err != nil {
			return nil, fmt.Errorf("verify claims: %w", err)
		}
	} else {
		rec.Warn("analyze", "analysis.skipped", "reason", "no items after normalization")
	}

	if claims == nil {
		claims = []model.Claim{}
	}

	summary := model.RunSummary{
		RunID:       runID,
		StartedAt:   started,
		FinishedAt:  p.now().UTC(),
		EntriesIn:   ingested.EntriesIn,
		ItemsOut:    len(items),
		ClaimsOut:   len(claims),
		TopicsOut:   len(model.DistinctTopics(claims)),
		Confidence:  model.TallyConfidence(claims),
		Counts:      rec.Counts(),
		TopicMerges: merges,
	}
	rec.Event("run", "run.complete",
		"items", summary.ItemsOut,
		"claims", summary.ClaimsOut,
		"topics", summary.TopicsOut)

	return &model.RunResult{Summary: summary, Items: items, Claims: claims}, nil
}

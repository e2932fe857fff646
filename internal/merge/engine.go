package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
)

// ErrPermanent marks a fetch failure that retrying cannot fix (robots.txt
// disallow, 404, non-HTML body). Fetchers wrap it with %w.
var ErrPermanent = errors.New("permanent fetch failure")

// ArticleFetcher retrieves the full text of an article
type ArticleFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options controls full-article fetching during a merge
type Options struct {
	Workers     int
	MaxRetries  int           // Attempts per article, including the first
	BaseBackoff time.Duration // Delay before the second attempt; doubles after that
}

// Engine merges a batch of raw entries. Full articles are fetched up front
// and concurrently for the entries that will create items, then the entries
// are folded in input order by a single Reducer, so the result is the same
// as a purely sequential merge.
type Engine struct {
	policies PolicyResolver
	fetcher  ArticleFetcher
	opts     Options
	rec      *audit.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a merge engine. A nil fetcher disables full-article fetching.
func NewEngine(policies PolicyResolver, fetcher ArticleFetcher, opts Options, rec *audit.Recorder) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if rec == nil {
		rec = audit.Discard()
	}
	return &Engine{
		policies: policies,
		fetcher:  fetcher,
		opts:     opts,
		rec:      rec,
		sleep:    sleepContext,
	}
}

type fetchOutcome struct {
	content  string
	err      error
	attempts int
}

// Merge deduplicates entries by key. Items come back in order of first
// appearance. The only error is context cancellation.
func (e *Engine) Merge(ctx context.Context, entries []model.RawEntry) ([]model.MergedItem, error) {
	fetched, err := e.prefetch(ctx, entries)
	if err != nil {
		return nil, err
	}

	reducer := NewReducer(e.policies, e.rec)
	rejected := 0
	for _, entry := range entries {
		d := reducer.Add(entry)
		if d.Rejected() {
			rejected++
			continue
		}
		if !d.Created {
			continue
		}
		if out, ok := fetched[entry.Key]; ok {
			reducer.ApplyFetch(entry.Key, out.content, out.err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.rec.Event("merge", "complete", "entries", len(entries), "items", reducer.Len(), "rejected", rejected)
	return reducer.Items(), nil
}

// creators returns, per key, the entry that will seed the item, limited to
// entries whose own policy asks for the full article
func (e *Engine) creators(entries []model.RawEntry) []model.RawEntry {
	probe := NewReducer(e.policies, audit.Discard())
	var out []model.RawEntry
	for _, entry := range entries {
		if probe.Check(entry) != "" {
			continue
		}
		if _, known := probe.Lookup(entry.Key); known {
			continue
		}
		probe.Add(entry)
		if e.policies.Resolve(categoryOf(entry)).FetchFullArticle {
			out = append(out, entry)
		}
	}
	return out
}

func (e *Engine) prefetch(ctx context.Context, entries []model.RawEntry) (map[string]fetchOutcome, error) {
	if e.fetcher == nil {
		return nil, nil
	}

	jobs := e.creators(entries)
	if len(jobs) == 0 {
		return nil, nil
	}

	outcomes := make([]fetchOutcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, entry := range jobs {
		i, entry := i, entry
		g.Go(func() error {
			out := e.fetchWithRetry(gctx, entry.Key)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prefetch articles: %w", err)
	}

	result := make(map[string]fetchOutcome, len(jobs))
	for i, entry := range jobs {
		out := outcomes[i]
		result[entry.Key] = out
		if out.err != nil {
			e.rec.Count(model.ReasonFetchFailed)
			e.rec.Warn("ingest", "fetch.failed", "url", entry.Key, "publisher", entry.Publisher, "attempts", out.attempts, "error", out.err.Error())
			continue
		}
		e.rec.Count(model.ReasonFetchSuccess)
		e.rec.Event("ingest", "fetch.success", "url", entry.Key, "publisher", entry.Publisher, "attempts", out.attempts, "chars", len([]rune(out.content)))
	}
	return result, nil
}

// fetchWithRetry retries transient failures with exponential backoff
func (e *Engine) fetchWithRetry(ctx context.Context, url string) fetchOutcome {
	var lastErr error
	for attempt := 0; attempt < e.opts.MaxRetries; attempt++ {
		content, err := e.fetcher.Fetch(ctx, url)
		if err == nil {
			return fetchOutcome{content: content, attempts: attempt + 1}
		}
		lastErr = err

		if errors.Is(err, ErrPermanent) || ctx.Err() != nil {
			return fetchOutcome{err: err, attempts: attempt + 1}
		}
		if attempt < e.opts.MaxRetries-1 {
			backoff := e.opts.BaseBackoff * time.Duration(1<<uint(attempt))
			if err := e.sleep(ctx, backoff); err != nil {
				return fetchOutcome{err: err, attempts: attempt + 1}
			}
		}
	}
	return fetchOutcome{err: fmt.Errorf("after %d attempts: %w", e.opts.MaxRetries, lastErr), attempts: e.opts.MaxRetries}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

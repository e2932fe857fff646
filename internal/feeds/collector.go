package feeds

import (
	"context"
	"sort"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/worker"
)

// Collector reads every registered source concurrently and returns the
// entries in registration order, which fixes the merge arrival order
type Collector struct {
	reader  Reader
	workers int
	rec     *audit.Recorder
}

// NewCollector creates a collector
func NewCollector(reader Reader, workers int, rec *audit.Recorder) *Collector {
	if rec == nil {
		rec = audit.Discard()
	}
	return &Collector{reader: reader, workers: workers, rec: rec}
}

type readJob struct {
	index  int
	src    model.SourceDescriptor
	reader Reader
}

type readResult struct {
	index   int
	src     model.SourceDescriptor
	entries []model.RawEntry
	err     error
}

func (r *readResult) GetError() error {
	return r.err
}

func (j *readJob) Execute(ctx context.Context) worker.Result {
	entries, err := j.reader.Read(ctx, j.src)
	return &readResult{index: j.index, src: j.src, entries: entries, err: err}
}

// Collect reads all sources. A failing source is counted and skipped; only
// cancellation is returned as an error.
func (c *Collector) Collect(ctx context.Context, sources []model.SourceDescriptor) ([]model.RawEntry, error) {
	pool := worker.NewPool(ctx, c.workers)
	pool.Start()

	for i, src := range sources {
		if !pool.Submit(&readJob{index: i, src: src, reader: c.reader}) {
			pool.Shutdown()
			return nil, ctx.Err()
		}
	}
	results := pool.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*readResult, 0, len(results))
	for _, r := range results {
		ordered = append(ordered, r.(*readResult))
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	var entries []model.RawEntry
	for _, r := range ordered {
		if r.err != nil {
			c.rec.Count(model.ReasonFeedFailed)
			c.rec.Warn("ingest", "feed.failed", "publisher", r.src.Name, "url", r.src.URL, "error", r.err.Error())
			continue
		}
		c.rec.Event("ingest", "feed.read", "publisher", r.src.Name, "category", string(r.src.Category), "entries", len(r.entries))
		entries = append(entries, r.entries...)
	}

	return entries, nil
}

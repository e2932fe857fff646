// Package audit records what a pipeline run decided and why. Every decision
// becomes a structured log event, and every non-fatal condition increments a
// counter so a run can be audited without reprocessing it.
package audit

import (
	"sort"
	"sync"

	"github.com/ppiankov/corroborate/internal/logging"
)

// Recorder collects audit events and reason counters for a single run.
// It is safe for concurrent use.
type Recorder struct {
	runID string
	log   *logging.Logger

	mu     sync.Mutex
	counts map[string]int
}

// NewRecorder creates a recorder for the given run
func NewRecorder(runID string, log *logging.Logger) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	return &Recorder{
		runID:  runID,
		log:    log.With("run_id", runID),
		counts: make(map[string]int),
	}
}

// Discard returns a recorder that counts but does not log
func Discard() *Recorder {
	return NewRecorder("discard", logging.Nop())
}

// RunID returns the run this recorder belongs to
func (r *Recorder) RunID() string {
	return r.runID
}

// Event writes one structured audit event, e.g. Event("verify", "claim.contested", "topic_id", t)
func (r *Recorder) Event(section, event string, keysAndValues ...interface{}) {
	r.log.Info(section+"."+event, append([]interface{}{"section", section}, keysAndValues...)...)
}

// Warn writes an audit event at warning level
func (r *Recorder) Warn(section, event string, keysAndValues ...interface{}) {
	r.log.Warn(section+"."+event, append([]interface{}{"section", section}, keysAndValues...)...)
}

// Count increments the counter for a reason
func (r *Recorder) Count(reason string) {
	r.Add(reason, 1)
}

// Add increments the counter for a reason by n
func (r *Recorder) Add(reason string, n int) {
	if n == 0 {
		return
	}
	r.mu.Lock()
	r.counts[reason] += n
	r.mu.Unlock()
}

// Get returns the current count for a reason
func (r *Recorder) Get(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[reason]
}

// Counts returns a copy of all counters
func (r *Recorder) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Reasons returns the counted reasons in sorted order
func (r *Recorder) Reasons() []string {
	counts := r.Counts()
	reasons := make([]string, 0, len(counts))
	for k := range counts {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	return reasons
}

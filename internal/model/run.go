package model

import "time"

// Reasons counted in a run summary. Every non-fatal condition has one.
const (
	ReasonEmptyKey           = "rejected_empty_key"
	ReasonEmptyContent       = "rejected_no_content"
	ReasonTooShort           = "rejected_too_short"
	ReasonEmptyTitle         = "rejected_empty_title"
	ReasonDuplicateMerged    = "duplicate_merged"
	ReasonFetchSuccess       = "fetch_success"
	ReasonFetchFailed        = "fetch_failed"
	ReasonFeedFailed         = "feed_failed"
	ReasonFilteredOld        = "filtered_too_old"
	ReasonFilteredNoTitle    = "filtered_no_title"
	ReasonFilteredShortTitle = "filtered_title_too_short"
	ReasonFilteredDupTitle   = "filtered_duplicate_title"
	ReasonExtractionFailed   = "extraction_batch_failed"
	ReasonClaimInvalid       = "claim_invalid"
	ReasonUnresolvedSource   = "unresolved_source_ref"
	ReasonOracleFailed       = "contestation_oracle_failed"
)

// RunSummary is the auditable per-run account of what happened
type RunSummary struct {
	RunID       string                  `json:"run_id"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	EntriesIn   int                     `json:"entries_in"`
	ItemsOut    int                     `json:"items_out"`
	ClaimsOut   int                     `json:"claims_out"`
	TopicsOut   int                     `json:"topics_out"`
	Confidence  map[ConfidenceLevel]int `json:"confidence"`
	Counts      map[string]int          `json:"counts"` // Non-fatal conditions by reason
	TopicMerges int                     `json:"topic_merges"`
}

// RunResult is the finalized output of one pipeline run
type RunResult struct {
	Summary RunSummary   `json:"summary"`
	Items   []MergedItem `json:"items"`
	Claims  []Claim      `json:"claims"`
}

// TallyConfidence counts claims per confidence level
func TallyConfidence(claims []Claim) map[ConfidenceLevel]int {
	tally := make(map[ConfidenceLevel]int)
	for _, c := range claims {
		tally[c.Confidence]++
	}
	return tally
}

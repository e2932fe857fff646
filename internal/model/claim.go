package model

// ConfidenceLevel is the epistemic status of a claim
type ConfidenceLevel string

const (
	ConfidenceReported     ConfidenceLevel = "reported"     // Stated directly by a source
	ConfidenceInferred     ConfidenceLevel = "inferred"     // Derived from what sources say
	ConfidenceSpeculative  ConfidenceLevel = "speculative"  // Forward-looking or hedged
	ConfidenceCorroborated ConfidenceLevel = "corroborated" // Reported by two or more sources
	ConfidenceContested    ConfidenceLevel = "contested"    // Disputed by a source on the same topic
)

// IsInitial reports whether the level can be assigned at extraction time.
// Corroborated and contested are reachable only through verification.
func (c ConfidenceLevel) IsInitial() bool {
	switch c {
	case ConfidenceReported, ConfidenceInferred, ConfidenceSpeculative:
		return true
	}
	return false
}

// IsValid reports whether the level is one of the five known states
func (c ConfidenceLevel) IsValid() bool {
	return c.IsInitial() || c == ConfidenceCorroborated || c == ConfidenceContested
}

// Claim represents an atomic factual assertion extracted from merged items
type Claim struct {
	Text       string          `json:"text"`
	Confidence ConfidenceLevel `json:"confidence"`
	SourceIDs  []string        `json:"source_ids"` // MergedItem keys
	TopicID    string          `json:"topic_id"`

	// UnresolvedSources lists source ids that matched no merged item.
	// The claim is still verified; synthesis is expected to exclude it.
	UnresolvedSources []string `json:"unresolved_sources,omitempty"`

	// Transitions is the audit trail of confidence changes, in order
	Transitions []Transition `json:"transitions,omitempty"`
}

// Transition records one confidence change applied during verification
type Transition struct {
	From ConfidenceLevel `json:"from"`
	To   ConfidenceLevel `json:"to"`
	Rule string          `json:"rule"` // "corroboration" or "contestation"
}

// DistinctSourceCount returns the number of distinct non-empty source ids
func (c *Claim) DistinctSourceCount() int {
	seen := make(map[string]struct{}, len(c.SourceIDs))
	for _, id := range c.SourceIDs {
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}

// Transition moves the claim to a new confidence level and records the step.
// Moving to the current level is a no-op.
func (c *Claim) Transition(to ConfidenceLevel, rule string) {
	if c.Confidence == to {
		return
	}
	c.Transitions = append(c.Transitions, Transition{From: c.Confidence, To: to, Rule: rule})
	c.Confidence = to
}

// TopicMapping maps provisional topic ids to canonical topic ids.
// Ids absent from the mapping map to themselves.
type TopicMapping map[string]string

// Resolve returns the canonical id for a provisional id
func (m TopicMapping) Resolve(id string) string {
	if canonical, ok := m[id]; ok && canonical != "" {
		return canonical
	}
	return id
}

// IsIdentity reports whether applying the mapping would change nothing
func (m TopicMapping) IsIdentity() bool {
	for from, to := range m {
		if from != to {
			return false
		}
	}
	return true
}

// Apply rewrites every claim's topic id in a single pass and returns the
// number of claims whose topic changed
func (m TopicMapping) Apply(claims []Claim) int {
	if len(m) == 0 {
		return 0
	}
	rewritten := 0
	for i := range claims {
		canonical := m.Resolve(claims[i].TopicID)
		if canonical != claims[i].TopicID {
			claims[i].TopicID = canonical
			rewritten++
		}
	}
	return rewritten
}

// DistinctTopics returns the distinct topic ids of the claims in first-seen order
func DistinctTopics(claims []Claim) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, c := range claims {
		if !seen[c.TopicID] {
			seen[c.TopicID] = true
			topics = append(topics, c.TopicID)
		}
	}
	return topics
}

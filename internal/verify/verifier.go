// Package verify assigns each claim its final confidence. Corroboration is a
// structural rule over cited sources; contestation is a yes/no judgement
// over the evidence that shares the claim's canonical topic.
package verify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
)

// Rules recorded on confidence transitions
const (
	RuleCorroboration = "corroboration"
	RuleContestation  = "contestation"
)

// ContestationQuery is one claim and the topic-scoped evidence to judge it against
type ContestationQuery struct {
	TopicID   string
	ClaimText string
	Evidence  []string
}

// ContestationJudge answers whether any evidence meaningfully disputes the claim
type ContestationJudge interface {
	IsContested(ctx context.Context, q ContestationQuery) (bool, error)
}

// Options controls verification
type Options struct {
	Concurrency      int // Concurrent oracle calls
	EvidenceMaxChars int // Per-item evidence limit, 0 for no limit
}

// Verifier runs the confidence state machine over a run's claims
type Verifier struct {
	judge ContestationJudge
	opts  Options
	rec   *audit.Recorder
}

// NewVerifier creates a verifier
func NewVerifier(judge ContestationJudge, opts Options, rec *audit.Recorder) *Verifier {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if rec == nil {
		rec = audit.Discard()
	}
	return &Verifier{judge: judge, opts: opts, rec: rec}
}

// Verify returns the claims with final confidence levels. Topic ids must
// already be canonical. The input slice is not modified. On cancellation no
// claims are returned.
func (v *Verifier) Verify(ctx context.Context, claims []model.Claim, items []model.MergedItem) ([]model.Claim, error) {
	index := model.IndexItems(items)
	topicSources := sourcesByTopic(claims)

	out := make([]model.Claim, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Concurrency)

	for i := range claims {
		i := i
		claim := cloneClaim(claims[i])
		g.Go(func() error {
			verified, err := v.verifyOne(gctx, claim, index, topicSources[claim.TopicID])
			if err != nil {
				return err
			}
			out[i] = verified
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify claims: %w", err)
	}

	tally := model.TallyConfidence(out)
	v.rec.Event("verify", "complete",
		"claims", len(out),
		"corroborated", tally[model.ConfidenceCorroborated],
		"contested", tally[model.ConfidenceContested],
	)
	return out, nil
}

func (v *Verifier) verifyOne(ctx context.Context, claim model.Claim, index map[string]*model.MergedItem, topicKeys []string) (model.Claim, error) {
	for _, id := range claim.SourceIDs {
		if _, ok := index[id]; !ok && !contains(claim.UnresolvedSources, id) {
			claim.UnresolvedSources = append(claim.UnresolvedSources, id)
			v.rec.Count(model.ReasonUnresolvedSource)
			v.rec.Warn("verify", "source.unresolved", "claim", claim.Text, "source_id", id)
		}
	}

	if claim.Confidence == model.ConfidenceReported && claim.DistinctSourceCount() >= 2 {
		claim.Transition(model.ConfidenceCorroborated, RuleCorroboration)
		v.rec.Event("verify", "claim.corroborated", "claim", claim.Text, "sources", claim.DistinctSourceCount())
	}

	evidence := v.evidence(claim, index, topicKeys)
	if len(evidence) == 0 {
		return claim, nil
	}

	contested, err := v.judge.IsContested(ctx, ContestationQuery{
		TopicID:   claim.TopicID,
		ClaimText: claim.Text,
		Evidence:  evidence,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return claim, ctxErr
	}
	if err != nil {
		v.rec.Count(model.ReasonOracleFailed)
		v.rec.Warn("verify", "contestation.failed", "claim", claim.Text, "topic_id", claim.TopicID, "error", err.Error())
		return claim, nil
	}

	if contested {
		claim.Transition(model.ConfidenceContested, RuleContestation)
		v.rec.Event("verify", "claim.contested", "claim", claim.Text, "topic_id", claim.TopicID, "evidence", len(evidence))
	}
	return claim, nil
}

// evidence collects the content of every resolvable item cited under the
// claim's topic, minus any text identical to the claim itself
func (v *Verifier) evidence(claim model.Claim, index map[string]*model.MergedItem, topicKeys []string) []string {
	claimText := strings.TrimSpace(claim.Text)
	var evidence []string
	for _, key := range topicKeys {
		item, ok := index[key]
		if !ok {
			continue
		}
		text := strings.TrimSpace(item.Content)
		if text == "" || text == claimText {
			continue
		}
		evidence = append(evidence, truncate(text, v.opts.EvidenceMaxChars))
	}
	return evidence
}

// sourcesByTopic lists, per topic, the source keys cited by its claims in
// first-cited order
func sourcesByTopic(claims []model.Claim) map[string][]string {
	byTopic := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, c := range claims {
		if seen[c.TopicID] == nil {
			seen[c.TopicID] = make(map[string]bool)
		}
		for _, id := range c.SourceIDs {
			if id == "" || seen[c.TopicID][id] {
				continue
			}
			seen[c.TopicID][id] = true
			byTopic[c.TopicID] = append(byTopic[c.TopicID], id)
		}
	}
	return byTopic
}

func cloneClaim(c model.Claim) model.Claim {
	c.SourceIDs = append([]string(nil), c.SourceIDs...)
	c.UnresolvedSources = append([]string(nil), c.UnresolvedSources...)
	c.Transitions = append([]model.Transition(nil), c.Transitions...)
	return c
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

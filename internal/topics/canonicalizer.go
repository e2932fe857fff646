// Package topics merges near-duplicate provisional topic ids onto one
// canonical id per cluster.
package topics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
)

// ErrMalformedMapping stops the run: continuing with inconsistently keyed
// claims would corrupt topic-scoped verification.
var ErrMalformedMapping = errors.New("malformed topic mapping")

// Grouper proposes a many-to-one mapping of provisional ids onto canonical ids.
// Ids it leaves out map to themselves.
type Grouper interface {
	GroupTopics(ctx context.Context, ids []string) (map[string]string, error)
}

// Canonicalizer computes topic mappings
type Canonicalizer struct {
	grouper Grouper
	rec     *audit.Recorder
}

// NewCanonicalizer creates a canonicalizer backed by a grouping oracle
func NewCanonicalizer(grouper Grouper, rec *audit.Recorder) *Canonicalizer {
	if rec == nil {
		rec = audit.Discard()
	}
	return &Canonicalizer{grouper: grouper, rec: rec}
}

// Canonicalize maps every distinct id to its canonical id. With fewer than
// two ids the mapping is the identity and the oracle is not consulted.
func (c *Canonicalizer) Canonicalize(ctx context.Context, ids []string) (model.TopicMapping, error) {
	distinct := distinctSorted(ids)

	mapping := make(model.TopicMapping, len(distinct))
	for _, id := range distinct {
		mapping[id] = id
	}
	if len(distinct) < 2 {
		c.rec.Event("topics", "mapping.identity", "topics", len(distinct))
		return mapping, nil
	}

	proposed, err := c.grouper.GroupTopics(ctx, distinct)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedMapping, err)
	}

	known := make(map[string]bool, len(distinct))
	for _, id := range distinct {
		known[id] = true
	}

	for from, to := range proposed {
		if !known[from] {
			c.rec.Event("topics", "mapping.ignored_key", "topic_id", from)
			continue
		}
		to = strings.TrimSpace(to)
		if to == "" {
			return nil, fmt.Errorf("%w: empty canonical id for %q", ErrMalformedMapping, from)
		}
		mapping[from] = to
	}

	resolved := make(model.TopicMapping, len(mapping))
	for _, id := range distinct {
		canonical, err := follow(mapping, id)
		if err != nil {
			return nil, err
		}
		resolved[id] = canonical
	}

	merges := 0
	for _, id := range distinct {
		if resolved[id] != id {
			merges++
			c.rec.Event("topics", "mapping.merge", "from", id, "to", resolved[id])
		}
	}
	c.rec.Event("topics", "mapping.complete", "topics", len(distinct), "merged", merges)

	return resolved, nil
}

// CanonicalizeClaims computes the mapping for the claims' topic ids and
// applies it to all of them before returning. It returns the number of
// rewritten claims.
func (c *Canonicalizer) CanonicalizeClaims(ctx context.Context, claims []model.Claim) (model.TopicMapping, int, error) {
	mapping, err := c.Canonicalize(ctx, model.DistinctTopics(claims))
	if err != nil {
		return nil, 0, err
	}
	return mapping, mapping.Apply(claims), nil
}

// follow walks a chain like a->b, b->c to its fixed point
func follow(mapping model.TopicMapping, id string) (string, error) {
	seen := map[string]bool{id: true}
	current := id
	for {
		next, ok := mapping[current]
		if !ok || next == current {
			return current, nil
		}
		if seen[next] {
			return "", fmt.Errorf("%w: cycle through %q", ErrMalformedMapping, id)
		}
		seen[next] = true
		current = next
	}
}

func distinctSorted(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

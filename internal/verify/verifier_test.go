package verify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/corroborate/internal/audit"
	"github.com/ppiankov/corroborate/internal/model"
)

type stubJudge struct {
	mu        sync.Mutex
	contested bool
	err       error
	queries   []ContestationQuery
}

func (j *stubJudge) IsContested(ctx context.Context, q ContestationQuery) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.queries = append(j.queries, q)
	return j.contested, j.err
}

func testItems() []model.MergedItem {
	return []model.MergedItem{
		{Key: "s1", Content: "Vendor X launched product Y on Tuesday."},
		{Key: "s2", Content: "Product Y is now available from X."},
		{Key: "s3", Content: "Analysts doubt Y shipped at all."},
		{Key: "other", Content: "Unrelated topic content."},
	}
}

func TestVerify_TransitionTable(t *testing.T) {
	tests := []struct {
		initial   model.ConfidenceLevel
		sources   []string
		contested bool
		want      model.ConfidenceLevel
	}{
		{model.ConfidenceReported, []string{"s1", "s2"}, false, model.ConfidenceCorroborated},
		{model.ConfidenceReported, []string{"s1", "s2"}, true, model.ConfidenceContested},
		{model.ConfidenceReported, []string{"s1"}, false, model.ConfidenceReported},
		{model.ConfidenceReported, []string{"s1"}, true, model.ConfidenceContested},
		{model.ConfidenceInferred, []string{"s1", "s2"}, false, model.ConfidenceInferred},
		{model.ConfidenceInferred, []string{"s1"}, true, model.ConfidenceContested},
		{model.ConfidenceSpeculative, []string{"s1", "s2"}, false, model.ConfidenceSpeculative},
		{model.ConfidenceSpeculative, []string{"s1", "s2"}, true, model.ConfidenceContested},
	}

	for _, tt := range tests {
		name := string(tt.initial) + "/" + string(tt.want)
		t.Run(name, func(t *testing.T) {
			judge := &stubJudge{contested: tt.contested}
			v := NewVerifier(judge, Options{Concurrency: 2}, nil)

			claims := []model.Claim{
				{Text: "claim", Confidence: tt.initial, SourceIDs: tt.sources, TopicID: "t1"},
				{Text: "sibling", Confidence: model.ConfidenceInferred, SourceIDs: []string{"s3"}, TopicID: "t1"},
			}
			out, err := v.Verify(context.Background(), claims, testItems())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[0].Confidence)
		})
	}
}

func TestVerify_CorroboratedScenario(t *testing.T) {
	v := NewVerifier(&stubJudge{}, Options{}, nil)
	claims := []model.Claim{{Text: "X launched Y", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1", "s2"}, TopicID: "t1"}}

	out, err := v.Verify(context.Background(), claims, testItems())
	require.NoError(t, err)

	assert.Equal(t, model.ConfidenceCorroborated, out[0].Confidence)
	assert.Equal(t, []model.Transition{{From: model.ConfidenceReported, To: model.ConfidenceCorroborated, Rule: RuleCorroboration}}, out[0].Transitions)
	assert.Equal(t, model.ConfidenceReported, claims[0].Confidence, "input is not modified")
}

func TestVerify_ContestedScenarioKeepsBothTransitions(t *testing.T) {
	v := NewVerifier(&stubJudge{contested: true}, Options{}, nil)
	claims := []model.Claim{{Text: "X launched Y", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1", "s2"}, TopicID: "t1"}}

	out, err := v.Verify(context.Background(), claims, testItems())
	require.NoError(t, err)

	assert.Equal(t, model.ConfidenceContested, out[0].Confidence)
	require.Len(t, out[0].Transitions, 2)
	assert.Equal(t, model.ConfidenceCorroborated, out[0].Transitions[0].To)
	assert.Equal(t, RuleContestation, out[0].Transitions[1].Rule)
}

func TestVerify_DuplicateSourceIDsDoNotCorroborate(t *testing.T) {
	v := NewVerifier(&stubJudge{}, Options{}, nil)
	claims := []model.Claim{{Text: "c", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1", "s1"}, TopicID: "t1"}}

	out, err := v.Verify(context.Background(), claims, testItems())
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceReported, out[0].Confidence)
}

func TestVerify_OracleFailureFailsOpen(t *testing.T) {
	rec := audit.Discard()
	v := NewVerifier(&stubJudge{contested: true, err: errors.New("unparseable answer")}, Options{}, rec)
	claims := []model.Claim{
		{Text: "c1", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1", "s2"}, TopicID: "t1"},
		{Text: "c2", Confidence: model.ConfidenceSpeculative, SourceIDs: []string{"s3"}, TopicID: "t1"},
	}

	out, err := v.Verify(context.Background(), claims, testItems())
	require.NoError(t, err)

	assert.Equal(t, model.ConfidenceCorroborated, out[0].Confidence)
	assert.Equal(t, model.ConfidenceSpeculative, out[1].Confidence)
	assert.Equal(t, 2, rec.Get(model.ReasonOracleFailed))
}

func TestVerify_EvidenceIsTopicScoped(t *testing.T) {
	judge := &stubJudge{}
	v := NewVerifier(judge, Options{EvidenceMaxChars: 10}, nil)

	items := testItems()
	items = append(items, model.MergedItem{Key: "echo", Content: "  exact claim text "})

	claims := []model.Claim{
		{Text: "exact claim text", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1", "echo"}, TopicID: "t1"},
		{Text: "sibling", Confidence: model.ConfidenceReported, SourceIDs: []string{"s3", "s1"}, TopicID: "t1"},
		{Text: "elsewhere", Confidence: model.ConfidenceReported, SourceIDs: []string{"other"}, TopicID: "t2"},
	}

	_, err := v.Verify(context.Background(), claims, items)
	require.NoError(t, err)
	require.Len(t, judge.queries, 3)

	byClaim := map[string]ContestationQuery{}
	for _, q := range judge.queries {
		byClaim[q.ClaimText] = q
	}

	assert.Equal(t, []string{"Vendor X l", "Analysts d"}, byClaim["exact claim text"].Evidence)
	assert.Equal(t, []string{"Vendor X l", "exact clai", "Analysts d"}, byClaim["sibling"].Evidence)
	assert.Equal(t, []string{"Unrelated "}, byClaim["elsewhere"].Evidence)
	assert.Equal(t, "t2", byClaim["elsewhere"].TopicID)
}

func TestVerify_NoEvidenceSkipsOracle(t *testing.T) {
	judge := &stubJudge{contested: true}
	v := NewVerifier(judge, Options{}, nil)
	claims := []model.Claim{{Text: "c", Confidence: model.ConfidenceReported, SourceIDs: []string{"missing"}, TopicID: "t1"}}

	out, err := v.Verify(context.Background(), claims, testItems())
	require.NoError(t, err)

	assert.Empty(t, judge.queries)
	assert.Equal(t, model.ConfidenceReported, out[0].Confidence)
}

func TestVerify_UnresolvedSourcesAreFlaggedNotDropped(t *testing.T) {
	rec := audit.Discard()
	v := NewVerifier(&stubJudge{}, Options{}, rec)
	claims := []model.Claim{{Text: "c", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1", "ghost"}, TopicID: "t1"}}

	out, err := v.Verify(context.Background(), claims, testItems())
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, []string{"ghost"}, out[0].UnresolvedSources)
	assert.Equal(t, model.ConfidenceCorroborated, out[0].Confidence)
	assert.Equal(t, 1, rec.Get(model.ReasonUnresolvedSource))
}

type cancelingJudge struct{ cancel context.CancelFunc }

func (j cancelingJudge) IsContested(ctx context.Context, q ContestationQuery) (bool, error) {
	j.cancel()
	return false, ctx.Err()
}

func TestVerify_CanceledRunReturnsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v := NewVerifier(cancelingJudge{cancel: cancel}, Options{Concurrency: 1}, nil)
	claims := []model.Claim{
		{Text: "a", Confidence: model.ConfidenceReported, SourceIDs: []string{"s1"}, TopicID: "t1"},
		{Text: "b", Confidence: model.ConfidenceReported, SourceIDs: []string{"s2"}, TopicID: "t1"},
	}

	out, err := v.Verify(ctx, claims, testItems())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestVerify_EmptyInput(t *testing.T) {
	v := NewVerifier(&stubJudge{}, Options{}, nil)
	out, err := v.Verify(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

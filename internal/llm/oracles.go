package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/verify"
)

// ErrUnparseable is returned when a model reply does not have the requested shape
var ErrUnparseable = errors.New("unparseable model output")

// ClaimExtractor turns merged items into claims with provisional topic ids
type ClaimExtractor interface {
	ExtractClaims(ctx context.Context, items []model.MergedItem) (*Extraction, error)
}

// Extraction is the outcome of claim extraction over all batches
type Extraction struct {
	Claims        []model.Claim
	Batches       int
	FailedBatches int
	InvalidClaims int
	TokensUsed    int
}

// OracleOptions controls the prompts sent by Oracles
type OracleOptions struct {
	BatchSize       int
	MaxContentChars int
	Instructions    string
}

// Oracles implements claim extraction, topic grouping and contestation
// judgement on top of a Provider
type Oracles struct {
	provider Provider
	opts     OracleOptions
	log      *logging.Logger
}

var (
	_ ClaimExtractor           = (*Oracles)(nil)
	_ verify.ContestationJudge = (*Oracles)(nil)
)

// NewOracles creates the LLM-backed oracles
func NewOracles(provider Provider, opts OracleOptions, log *logging.Logger) *Oracles {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 5000
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Oracles{provider: provider, opts: opts, log: log.With("provider", provider.Name())}
}

type extractedClaim struct {
	Text       string   `json:"text"`
	Confidence string   `json:"confidence"`
	SourceIDs  []string `json:"source_ids"`
	TopicID    string   `json:"topic_id"`
}

type extractionReply struct {
	Claims []extractedClaim `json:"claims"`
}

// ExtractClaims sends items in fixed-size batches. A batch whose call fails
// or whose reply is not valid JSON contributes no claims; only context
// cancellation is returned as an error.
func (o *Oracles) ExtractClaims(ctx context.Context, items []model.MergedItem) (*Extraction, error) {
	result := &Extraction{}
	if len(items) == 0 {
		return result, nil
	}

	total := (len(items) + o.opts.BatchSize - 1) / o.opts.BatchSize
	result.Batches = total

	for b := 0; b < total; b++ {
		start := b * o.opts.BatchSize
		end := min(start+o.opts.BatchSize, len(items))

		sources := make([]sourceBlock, 0, end-start)
		for _, item := range items[start:end] {
			sources = append(sources, sourceBlock{Key: item.Key, Content: truncateRunes(item.Content, o.opts.MaxContentChars)})
		}

		resp, err := o.provider.Complete(ctx, CompletionRequest{
			System:      extractionSystem,
			Prompt:      BuildExtractionPrompt(sources, b+1, total, o.opts.Instructions),
			Temperature: 0.2,
			JSON:        true,
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			result.FailedBatches++
			o.log.Warn("extraction batch failed", "batch", b+1, "batches", total, "error", err)
			continue
		}
		result.TokensUsed += resp.TokensUsed

		var reply extractionReply
		if err := decodeJSONReply(resp.Text, &reply); err != nil {
			result.FailedBatches++
			o.log.Warn("extraction batch returned invalid JSON", "batch", b+1, "batches", total, "error", err)
			continue
		}

		for _, raw := range reply.Claims {
			claim, ok := toClaim(raw)
			if !ok {
				result.InvalidClaims++
				continue
			}
			result.Claims = append(result.Claims, claim)
		}
		o.log.Debug("extraction batch complete", "batch", b+1, "batches", total, "claims", len(reply.Claims))
	}

	return result, nil
}

func toClaim(raw extractedClaim) (model.Claim, bool) {
	text := strings.TrimSpace(raw.Text)
	confidence := model.ConfidenceLevel(strings.ToLower(strings.TrimSpace(raw.Confidence)))
	topic := strings.TrimSpace(raw.TopicID)
	if text == "" || topic == "" || !confidence.IsInitial() {
		return model.Claim{}, false
	}

	var ids []string
	for _, id := range raw.SourceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	return model.Claim{Text: text, Confidence: confidence, SourceIDs: ids, TopicID: topic}, true
}

type groupingReply struct {
	TopicMapping map[string]string `json:"topic_mapping"`
}

// GroupTopics asks the model to cluster near-duplicate topic ids
func (o *Oracles) GroupTopics(ctx context.Context, ids []string) (map[string]string, error) {
	resp, err := o.provider.Complete(ctx, CompletionRequest{
		System:      groupingSystem,
		Prompt:      BuildGroupingPrompt(ids),
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("group topics: %w", err)
	}

	var reply groupingReply
	if err := decodeJSONReply(resp.Text, &reply); err != nil {
		return nil, fmt.Errorf("group topics: %w", err)
	}
	if reply.TopicMapping == nil {
		return nil, fmt.Errorf("group topics: %w: missing topic_mapping", ErrUnparseable)
	}
	return reply.TopicMapping, nil
}

// IsContested asks for a strict YES/NO judgement. Any other reply is an error,
// which the verifier treats as "not contested".
func (o *Oracles) IsContested(ctx context.Context, q verify.ContestationQuery) (bool, error) {
	resp, err := o.provider.Complete(ctx, CompletionRequest{
		System:      contestationSystem,
		Prompt:      BuildContestationPrompt(q.TopicID, q.ClaimText, q.Evidence),
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return false, fmt.Errorf("contestation: %w", err)
	}

	switch answer := strings.ToUpper(strings.TrimRight(strings.TrimSpace(resp.Text), ".!")); answer {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	default:
		return false, fmt.Errorf("contestation: %w: %q", ErrUnparseable, resp.Text)
	}
}

// decodeJSONReply parses a JSON object reply, tolerating markdown code fences
// and prose around the object
func decodeJSONReply(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object", ErrUnparseable)
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

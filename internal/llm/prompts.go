package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const extractionSystem = `You are a careful analytical assistant.
Your job is to extract factual claims from news sources.
Do not speculate or add facts.`

const groupingSystem = `You are organizing topic identifiers.
Your job is to merge or rename topic IDs that refer to the same real-world topic.
Do NOT invent new topics unless necessary.
Be conservative.`

const contestationSystem = `You are an impartial analyst.
Answer ONLY YES or NO.`

// sourceBlock is one item as shown to the extraction model
type sourceBlock struct {
	Key     string
	Content string
}

// BuildExtractionPrompt renders one extraction batch
func BuildExtractionPrompt(sources []sourceBlock, batchNum, totalBatches int, instructions string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sources (Batch %d/%d):\n", batchNum, totalBatches)
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", s.Key, s.Content)
	}

	b.WriteString(`

Instructions:
- Extract the most important factual claims.
- Base claims strictly on the sources.
- For source_ids, use the EXACT ids from the square brackets (if you see [https://example.com/a], use "https://example.com/a").
- Assign a short, stable topic_id (snake_case) to each claim.
- Claims about the same real-world topic or event MUST share the same topic_id.
- Topic ids may be imperfect and will be normalized later.
`)

	if instructions = strings.TrimSpace(instructions); instructions != "" {
		fmt.Fprintf(&b, "\nCustom Focus:\n%s\n", instructions)
	}

	b.WriteString(`
Allowed confidence values:
- reported
- inferred
- speculative

Return EXACTLY this JSON schema:
{
  "claims": [
    {
      "text": "...",
      "confidence": "reported|inferred|speculative",
      "source_ids": ["actual-source-id-from-brackets"],
      "topic_id": "example_topic_id"
    }
  ]
}
`)
	return b.String()
}

// BuildGroupingPrompt renders the topic grouping request
func BuildGroupingPrompt(ids []string) string {
	encoded, _ := json.MarshalIndent(ids, "", "  ")

	return fmt.Sprintf(`Topic IDs:
%s

Instructions:
- If two or more topic_ids refer to the same real-world topic, map them to ONE canonical topic_id.
- Use short, stable snake_case names.
- If a topic_id is already good, keep it unchanged.
- Do NOT remove topics unless they clearly overlap.

Return EXACTLY this JSON schema:
{
  "topic_mapping": {
    "old_topic_id": "canonical_topic_id"
  }
}
`, encoded)
}

// BuildContestationPrompt renders one contestation question
func BuildContestationPrompt(topicID, claim string, evidence []string) string {
	var sources strings.Builder
	for _, text := range evidence {
		fmt.Fprintf(&sources, "- %s\n", text)
	}

	return fmt.Sprintf(`Topic: %s

Claim:
%q

Other sources on the SAME topic:
%s
Question:
Do any of these sources meaningfully dispute, contradict,
or cast substantive doubt on the claim?
`, topicID, claim, sources.String())
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/corroborate/internal/model"
)

// Renderer writes run results to disk and to the console
type Renderer struct {
	dir string
}

// NewRenderer creates a renderer that writes into dir
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Write renders the enabled formats as <run_id>.json and <run_id>.md and
// returns the written paths
func (r *Renderer) Write(result *model.RunResult, withJSON, withMarkdown bool) ([]string, error) {
	if !withJSON && !withMarkdown {
		return nil, nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var paths []string
	base := filepath.Join(r.dir, result.Summary.RunID)

	if withJSON {
		path := base + ".json"
		if err := r.RenderJSON(result, path); err != nil {
			return paths, fmt.Errorf("render JSON: %w", err)
		}
		paths = append(paths, path)
	}
	if withMarkdown {
		path := base + ".md"
		if err := r.RenderMarkdown(result, path); err != nil {
			return paths, fmt.Errorf("render markdown: %w", err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// RenderJSON writes the full result as indented JSON
func (r *Renderer) RenderJSON(result *model.RunResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RenderMarkdown writes a human-readable briefing of the claims, grouped by topic
func (r *Renderer) RenderMarkdown(result *model.RunResult, path string) error {
	return os.WriteFile(path, []byte(Markdown(result)), 0o644)
}

// Markdown renders the result as a Markdown document
func Markdown(result *model.RunResult) string {
	var b strings.Builder
	s := result.Summary

	fmt.Fprintf(&b, "# Briefing %s\n\n", s.RunID)
	fmt.Fprintf(&b, "Generated %s from %d entries, %d articles.\n\n",
		s.FinishedAt.Format("2006-01-02 15:04 MST"), s.EntriesIn, s.ItemsOut)

	b.WriteString("| Confidence | Claims |\n|---|---|\n")
	for _, level := range confidenceOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", level, s.Confidence[level])
	}
	b.WriteString("\n")

	items := model.IndexItems(result.Items)
	byTopic := make(map[string][]model.Claim)
	for _, c := range result.Claims {
		byTopic[c.TopicID] = append(byTopic[c.TopicID], c)
	}
	topicIDs := make([]string, 0, len(byTopic))
	for id := range byTopic {
		topicIDs = append(topicIDs, id)
	}
	sort.Strings(topicIDs)

	b.WriteString("## Claims\n\n")
	if len(topicIDs) == 0 {
		b.WriteString("No claims were extracted.\n\n")
	}
	for _, id := range topicIDs {
		fmt.Fprintf(&b, "### %s\n\n", id)
		for _, c := range byTopic[id] {
			fmt.Fprintf(&b, "- **%s** %s\n", c.Confidence, c.Text)
			for _, src := range c.SourceIDs {
				if item, ok := items[src]; ok {
					fmt.Fprintf(&b, "  - [%s](%s) (%s)\n", item.Title, item.Key, strings.Join(item.Publishers, ", "))
				} else {
					fmt.Fprintf(&b, "  - %s (unresolved)\n", src)
				}
			}
		}
		b.WriteString("\n")
	}

	if len(s.Counts) > 0 {
		b.WriteString("## Run audit\n\n| Reason | Count |\n|---|---|\n")
		for _, reason := range sortedKeys(s.Counts) {
			fmt.Fprintf(&b, "| %s | %d |\n", reason, s.Counts[reason])
		}
		b.WriteString("\n")
	}

	return b.String()
}

var confidenceOrder = []model.ConfidenceLevel{
	model.ConfidenceCorroborated,
	model.ConfidenceReported,
	model.ConfidenceInferred,
	model.ConfidenceSpeculative,
	model.ConfidenceContested,
}

// PrintSummary writes the console summary of a run
func PrintSummary(w io.Writer, result *model.RunResult) {
	s := result.Summary

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Run %s\n", s.RunID)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Entries in:    %d\n", s.EntriesIn)
	fmt.Fprintf(w, "  Articles:      %d\n", s.ItemsOut)
	fmt.Fprintf(w, "  Claims:        %d\n", s.ClaimsOut)
	fmt.Fprintf(w, "  Topics:        %d (%d merged)\n", s.TopicsOut, s.TopicMerges)
	fmt.Fprintf(w, "  Duration:      %v\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "\n")

	for _, level := range confidenceOrder {
		if n := s.Confidence[level]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", string(level)+":", n)
		}
	}

	if len(s.Counts) > 0 {
		fmt.Fprintf(w, "\n  Audit counters:\n")
		for _, reason := range sortedKeys(s.Counts) {
			fmt.Fprintf(w, "    %-28s %d\n", reason, s.Counts[reason])
		}
	}
	fmt.Fprintf(w, "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

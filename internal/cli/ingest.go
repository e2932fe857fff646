package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/corroborate/internal/pipeline"
)

var ingestOut string

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Read, merge and filter entries without calling an LLM",
	Long: `Ingest runs the first half of the pipeline and writes the merged articles
as JSON. It is useful for checking feeds and ingestion policies before
spending tokens on analysis.

Example:
  corroborate ingest
  corroborate ingest --feeds config/rss_feeds.yaml --out items.json`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	addIngestFlags(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestOut, "out", "", "output path (default: <output-dir>/<run_id>.items.json)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagOverrides(cmd))
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	p, err := pipeline.NewFromConfig(cfg, log, false)
	if err != nil {
		return err
	}

	result, err := p.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	path := ingestOut
	if path == "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		path = filepath.Join(cfg.Output.Dir, result.RunID+".items.json")
	}

	data, err := json.MarshalIndent(result.Items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write items: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", result.RunID)
	fmt.Fprintf(out, "Entries:   %d\n", result.EntriesIn)
	fmt.Fprintf(out, "Articles:  %d\n", len(result.Items))
	counts := result.Counts()
	for _, reason := range result.Reasons() {
		fmt.Fprintf(out, "  %-28s %d\n", reason, counts[reason])
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)

	return nil
}

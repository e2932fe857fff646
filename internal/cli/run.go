package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/corroborate/internal/pipeline"
)

var (
	feedsFile     string
	entryFiles    []string
	outputDir     string
	runTimeout    time.Duration
	noCache       bool
	skipNormalize bool
	noJSON        bool
	noMarkdown    bool
	llmProvider   string
	llmModel      string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full briefing pipeline",
	Long: `Run executes one complete briefing:
- Read every registered feed and any exported entry files
- Merge entries that point at the same article
- Fetch full articles for sources whose policy asks for it
- Extract claims, canonicalize their topics and verify them
- Write the result as JSON and Markdown

Example:
  corroborate run
  corroborate run --feeds config/rss_feeds.yaml --entries mailbox.json
  corroborate run --llm-provider anthropic --llm-model claude-3-5-haiku-latest`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addIngestFlags(runCmd)

	runCmd.Flags().BoolVar(&noJSON, "no-json", false, "do not write the JSON result")
	runCmd.Flags().BoolVar(&noMarkdown, "no-md", false, "do not write the Markdown briefing")
	runCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	runCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// addIngestFlags registers the flags shared by run and ingest
func addIngestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&feedsFile, "feeds", "", "feeds file (rss_feeds YAML)")
	cmd.Flags().StringSliceVar(&entryFiles, "entries", nil, "JSON entry files to merge with the feeds")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory for run artifacts")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall run timeout")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the article cache (force fresh fetch)")
	cmd.Flags().BoolVar(&skipNormalize, "skip-normalize", false, "skip the lookback and title filters")
}

// flagOverrides maps the flags the user actually set onto config keys
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	overrides := make(map[string]interface{})
	set := func(flag, key string, value interface{}) {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[key] = value
		}
	}

	set("feeds", "sources.feeds_file", feedsFile)
	set("entries", "sources.entry_files", entryFiles)
	set("output-dir", "output.dir", outputDir)
	set("no-cache", "cache.enabled", !noCache)
	set("skip-normalize", "normalize.skip", skipNormalize)
	set("no-json", "output.json", !noJSON)
	set("no-md", "output.markdown", !noMarkdown)
	set("llm-provider", "llm.provider", llmProvider)
	set("llm-model", "llm.model", llmModel)

	return overrides
}

func runRun(cmd *cobra.Command, args []string) error {
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

	if verbose {
		fmt.Fprintf(os.Stderr, "Feeds:    %s\n", cfg.Sources.FeedsFile)
		fmt.Fprintf(os.Stderr, "LLM:      %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Cache:    %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.NewFromConfig(cfg, log, true)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	pipeline.PrintSummary(cmd.OutOrStdout(), result)

	paths, err := pipeline.NewRenderer(cfg.Output.Dir).Write(result, cfg.Output.JSON, cfg.Output.Markdown)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	for _, path := range paths {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	}

	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/corroborate/internal/policy"
)

var (
	sourcesJSON  bool
	showPolicies bool
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered sources and the ingestion policy each one gets",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.Flags().StringVar(&feedsFile, "feeds", "", "feeds file (rss_feeds YAML)")
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "print as JSON")
	sourcesCmd.Flags().BoolVar(&showPolicies, "policies", false, "print the ingestion policy table instead of the sources")
}

type sourceRow struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	Category         string `json:"category"`
	Tier             int    `json:"tier"`
	FetchFullArticle bool   `json:"fetch_full_article"`
	MinContentLength int    `json:"min_content_length"`
	Fallback         bool   `json:"fallback,omitempty"` // Category has no policy of its own
}

type policyRow struct {
	Category         string `json:"category"`
	Tier             int    `json:"tier"`
	FetchFullArticle bool   `json:"fetch_full_article"`
	MinContentLength int    `json:"min_content_length"`
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagOverrides(cmd))
	if err != nil {
		return err
	}

	table := policy.NewTable(cfg.Policies)
	if showPolicies {
		return printPolicies(cmd, table)
	}

	registry, err := policy.LoadRegistry(cfg.Sources.FeedsFile, table, policy.NewClassifier(cfg.Classifier))
	if err != nil {
		return err
	}

	rows := make([]sourceRow, 0, registry.Len())
	for _, src := range registry.Sources() {
		p := registry.ResolvePolicy(src.Category)
		rows = append(rows, sourceRow{
			Name:             src.Name,
			URL:              src.URL,
			Category:         string(src.Category),
			Tier:             p.Tier,
			FetchFullArticle: p.FetchFullArticle,
			MinContentLength: p.MinContentLength,
			Fallback:         !table.Known(src.Category),
		})
	}

	out := cmd.OutOrStdout()
	if sourcesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tTIER\tFETCH\tMIN\tURL")
	for _, r := range rows {
		category := r.Category
		if r.Fallback {
			category += " (unknown policy)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%d\t%s\n", r.Name, category, r.Tier, r.FetchFullArticle, r.MinContentLength, r.URL)
	}
	return w.Flush()
}

func printPolicies(cmd *cobra.Command, table *policy.Table) error {
	categories := table.Categories()
	rows := make([]policyRow, 0, len(categories))
	for _, c := range categories {
		p := table.Resolve(c)
		rows = append(rows, policyRow{
			Category:         string(c),
			Tier:             p.Tier,
			FetchFullArticle: p.FetchFullArticle,
			MinContentLength: p.MinContentLength,
		})
	}

	out := cmd.OutOrStdout()
	if sourcesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tTIER\tFETCH\tMIN")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%v\t%d\n", r.Category, r.Tier, r.FetchFullArticle, r.MinContentLength)
	}
	return w.Flush()
}

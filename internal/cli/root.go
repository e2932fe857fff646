package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/corroborate/internal/config"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "corroborate",
	Short: "Corroborate - multi-source news briefing with claim verification",
	Long: `Corroborate ingests news from many feeds, merges duplicate articles by URL,
extracts claims with an LLM and assigns every claim an epistemic confidence.

A claim reported by two independent sources is corroborated. A claim that
evidence on the same topic disputes is contested. Everything else keeps the
confidence it was extracted with.

Corroborate reports what sources say, not what is true.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "corroborate %s\n", Version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.corroborate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads file and environment, then applies the flag overrides
func loadConfig(overrides map[string]interface{}) (*model.Config, error) {
	loader := config.NewLoader(cfgFile)
	for key, value := range overrides {
		loader.Override(key, value)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if verbose {
		if used := loader.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
		}
		cfg.Output.Verbose = true
	}
	return cfg, nil
}

func newLogger(cfg *model.Config) (*logging.Logger, error) {
	log, err := logging.New(cfg.Logging.Mode, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

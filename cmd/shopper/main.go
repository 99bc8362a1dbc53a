package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/cmd/shopper/commands"
	"github.com/teranos/shopper/logger"
)

var rootCmd = &cobra.Command{
	Use:   "shopper",
	Short: "shopper - synthetic grocery recommendation datasets",
	Long: `shopper - generate synthetic product recommendation datasets with LLMs.

Starting from a grocery catalog, shopper describes products, recommends
products that go well together, maps every suggestion back to a real catalog
product, writes customer-facing explanations and question/answer pairs, and
packages the results as fine-tuning datasets.

Available commands:
  describe   - Describe catalog products
  recommend  - Recommend products that go well together
  format     - Write recommendation explanations citing product ids
  qa         - Generate question/answer pairs
  classifier - Train and query the product name classifier
  tune       - Build fine-tuning datasets and submit training jobs
  eval       - Compare a tuned model with and without prompt engineering
  usage      - Show model usage and cost
  am         - Manage shopper configuration

Examples:
  shopper describe --limit 200            # data/products.csv -> data/products.jsonl
  shopper classifier train                # train on data/products.jsonl
  shopper recommend && shopper format     # pairings, then explanations
  shopper tune build recommendations      # fine-tuning dataset`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			am.SetConfigFile(path)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit JSON logs and JSON progress events")
	rootCmd.PersistentFlags().String("config", "", "Config file (overrides project and user config)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DescribeCmd)
	rootCmd.AddCommand(commands.RecommendCmd)
	rootCmd.AddCommand(commands.FormatCmd)
	rootCmd.AddCommand(commands.QACmd)
	rootCmd.AddCommand(commands.ClassifierCmd)
	rootCmd.AddCommand(commands.TuneCmd)
	rootCmd.AddCommand(commands.EvalCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

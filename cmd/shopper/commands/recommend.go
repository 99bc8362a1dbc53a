package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
)

// RecommendCmd generates product pairings and matches them to the catalog
var RecommendCmd = &cobra.Command{
	Use:   "recommend [products.jsonl]",
	Short: "Generate recommendations from described products",
	Long: `Generate product recommendations from describe output.

Each step samples --batch-size described products (seeded by the step), asks
for three products that go well with each, describes every suggestion and
classifies the description back to a catalog product with the trained
classifier. The output is rewritten on every run.

Examples:
  shopper recommend
  shopper recommend data/products.jsonl --limit 200
  shopper recommend --classifier models/classifier.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecommend,
}

func init() {
	addStageFlags(RecommendCmd, 0)
	RecommendCmd.Flags().String("classifier", "", "Trained classifier file (default classifier.model_path)")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	flags := readStageFlags(cmd, cfg, recommendations)

	products, err := readJSONL[generate.DescribedProduct](ctx, inputArg(args, cfg, productsJSONL))
	if err != nil {
		return err
	}

	cls, err := loadClassifier(ctx, cfg, classifierPath(cmd, cfg))
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cmd, cfg, flags)
	if err != nil {
		return err
	}
	defer s.Close()
	s.gen.Classifier = cls

	_, err = s.gen.Recommend(ctx, products, generate.Output{Path: flags.output, Limit: flags.limit})
	return err
}

package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
)

// QACmd builds a synthetic question/answer dataset
var QACmd = &cobra.Command{
	Use:   "qa [catalog]",
	Short: "Generate question/answer pairs from the first catalog products",
	Long: `Generate question/answer pairs for the first --limit catalog products.

A classifier over the selected product names is loaded from --classifier, or
trained and saved there on the first run.

Examples:
  shopper qa
  shopper qa data/products.csv --limit 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQA,
}

func init() {
	addStageFlags(QACmd, generate.DefaultQALimit)
	QACmd.Flags().String("classifier", qaClassifierModel, "Product name classifier file, trained when missing")
}

func runQA(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	flags := readStageFlags(cmd, cfg, qaDataset)

	records, err := catalog.Load(ctx, inputArg(args, cfg, productsCSV))
	if err != nil {
		return err
	}
	records = catalog.Limit(records, flags.limit)

	path, _ := cmd.Flags().GetString("classifier")
	var cls classifier.Trainable
	if _, statErr := os.Stat(path); statErr == nil {
		cls, err = loadClassifier(ctx, cfg, path)
	} else {
		cls, err = trainClassifier(cmd, cfg, generate.QAProducts(records), path)
	}
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cmd, cfg, flags)
	if err != nil {
		return err
	}
	defer s.Close()
	s.gen.Classifier = cls

	_, err = s.gen.QA(ctx, records, generate.Output{Path: flags.output})
	return err
}

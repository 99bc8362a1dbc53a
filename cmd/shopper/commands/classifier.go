package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
)

// ClassifierCmd trains and queries the product classifier
var ClassifierCmd = &cobra.Command{
	Use:   "classifier",
	Short: "Train and query the product name classifier",
	Long: `Train and query the classifier that maps generated descriptions back to
catalog products.

The backend comes from classifier.backend: "service" trains on the remote
classifier service, "embedding" ranks products by embedding similarity.

Examples:
  shopper classifier train data/train-products.jsonl
  shopper classifier classify "creamy cheese for pasta"`,
}

var classifierTrainCmd = &cobra.Command{
	Use:   "train [products.jsonl]",
	Short: "Train a classifier from described products",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClassifierTrain,
}

var classifierClassifyCmd = &cobra.Command{
	Use:   "classify <text>...",
	Short: "Classify texts with a trained classifier",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassifierClassify,
}

func init() {
	classifierTrainCmd.Flags().StringP("output", "o", "", "Where to save the classifier (default classifier.model_path)")
	classifierClassifyCmd.Flags().String("classifier", "", "Trained classifier file (default classifier.model_path)")

	ClassifierCmd.AddCommand(classifierTrainCmd)
	ClassifierCmd.AddCommand(classifierClassifyCmd)
}

func runClassifierTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	products, err := readJSONL[generate.DescribedProduct](ctx, inputArg(args, cfg, productsJSONL))
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = cfg.Classifier.ModelPath
	}
	if _, err := trainClassifier(cmd, cfg, products, path); err != nil {
		return err
	}
	pterm.Success.Printf("Trained classifier on %d products: %s\n", len(products), path)
	return nil
}

// trainClassifier trains a fresh classifier on products and saves it to path
func trainClassifier(cmd *cobra.Command, cfg *am.Config, products []generate.DescribedProduct, path string) (classifier.Trainable, error) {
	ctx := cmd.Context()
	cls, err := newClassifier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := generate.TrainClassifier(ctx, cls, products); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := cls.Save(path); err != nil {
		return nil, err
	}
	return cls, nil
}

func runClassifierClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	cls, err := loadClassifier(ctx, cfg, classifierPath(cmd, cfg))
	if err != nil {
		return err
	}
	results, err := cls.Classify(ctx, args)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"Text", "Product", "Score"}}
	for i, preds := range results {
		for j, p := range preds {
			text := ""
			if j == 0 {
				text = truncate(args[i], 40)
			}
			data = append(data, []string{text, p.ClassName, fmt.Sprintf("%.3f", p.Score)})
		}
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

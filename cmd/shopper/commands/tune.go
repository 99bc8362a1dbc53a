package commands

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
	"github.com/teranos/shopper/prompt"
	"github.com/teranos/shopper/tune"
)

// TuneCmd builds fine-tuning datasets and drives the training service
var TuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Build fine-tuning datasets and submit training jobs",
	Long: `Build fine-tuning datasets from stage output and submit them to the
training service configured under [training].

Dataset kinds:
  recommendations  "What would go well with X?" -> formatted recommendation
  descriptions     product record plus the start of its description -> the rest
  raw              one catalog line per example, no input

Examples:
  shopper tune build recommendations
  shopper tune build descriptions data/products.jsonl --limit 1000
  shopper tune submit data/tune-recommendations.jsonl --wait
  shopper tune status 3f2a --wait`,
}

var tuneBuildCmd = &cobra.Command{
	Use:       "build <kind> [input]",
	Short:     "Build a fine-tuning dataset",
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: tune.Kinds,
	RunE:      runTuneBuild,
}

var tuneSubmitCmd = &cobra.Command{
	Use:   "submit <dataset.jsonl>",
	Short: "Submit a dataset to the training service",
	Args:  cobra.ExactArgs(1),
	RunE:  runTuneSubmit,
}

var tuneStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a training job's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runTuneStatus,
}

func init() {
	tuneBuildCmd.Flags().StringP("output", "o", "", "Dataset file (default tune-<kind>.jsonl under paths.data_dir)")
	tuneBuildCmd.Flags().Int64("seed", 0, "Split seed for descriptions (0 = pipeline.seed)")
	tuneBuildCmd.Flags().Int("limit", 0, "Maximum examples (0 = all)")

	tuneSubmitCmd.Flags().String("base-model", "", "Model to fine-tune (default training.base_model)")
	tuneSubmitCmd.Flags().Bool("wait", false, "Wait for the job to finish")
	tuneSubmitCmd.Flags().Duration("interval", 30*time.Second, "Polling interval with --wait")

	tuneStatusCmd.Flags().Bool("wait", false, "Wait for the job to finish")
	tuneStatusCmd.Flags().Duration("interval", 30*time.Second, "Polling interval with --wait")

	TuneCmd.AddCommand(tuneBuildCmd)
	TuneCmd.AddCommand(tuneSubmitCmd)
	TuneCmd.AddCommand(tuneStatusCmd)
}

func runTuneBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	kind := args[0]
	if !slices.Contains(tune.Kinds, kind) {
		return errors.NewInvalidRequestError("unknown dataset kind %q (want one of %s)", kind, strings.Join(tune.Kinds, ", "))
	}
	limit, _ := cmd.Flags().GetInt("limit")
	seed, _ := cmd.Flags().GetInt64("seed")
	if !cmd.Flags().Changed("seed") {
		seed = cfg.Pipeline.Seed
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.DataPath("tune-" + kind + ".jsonl")
	}

	lib, err := prompt.NewLibrary(cfg.Paths.PromptsDir)
	if err != nil {
		return err
	}

	var examples []tune.Example
	switch kind {
	case tune.KindRecommendations:
		var recs []generate.FormattedRecommendation
		if recs, err = readJSONL[generate.FormattedRecommendation](ctx, inputArg(args[1:], cfg, formattedRecs)); err == nil {
			examples, err = tune.Recommendations(lib, recs, limit)
		}
	case tune.KindDescriptions:
		var products []generate.DescribedProduct
		if products, err = readJSONL[generate.DescribedProduct](ctx, inputArg(args[1:], cfg, productsJSONL)); err == nil {
			examples, err = tune.Descriptions(lib, products, seed, limit)
		}
	case tune.KindRaw:
		examples, err = rawExamples(ctx, inputArg(args[1:], cfg, productsCSV), limit)
	}
	if err != nil {
		return err
	}

	if err := tune.Write(output, examples); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %d %s examples to %s\n", len(examples), kind, output)
	return nil
}

func rawExamples(ctx context.Context, source string, limit int) ([]tune.Example, error) {
	path, cleanup, err := catalog.Resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return tune.Raw(f, limit)
}

func newTuneClient(cfg *am.Config) (*tune.Client, error) {
	return tune.NewClient(tune.Config{
		URL:       cfg.Training.URL,
		APIKey:    cfg.Training.APIKey,
		BaseModel: cfg.Training.BaseModel,
		Timeout:   time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
	})
}

func runTuneSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if baseModel, _ := cmd.Flags().GetString("base-model"); baseModel != "" {
		cfg.Training.BaseModel = baseModel
	}

	examples, err := catalog.ReadJSONL[tune.Example](args[0])
	if err != nil {
		return err
	}
	client, err := newTuneClient(cfg)
	if err != nil {
		return err
	}

	job, err := client.Submit(ctx, examples)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Submitted %d examples as job %s\n", len(examples), job.ID)
	return waitIfRequested(ctx, cmd, client, job)
}

func runTuneStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	client, err := newTuneClient(cfg)
	if err != nil {
		return err
	}

	job, err := client.Status(ctx, args[0])
	if err != nil {
		return err
	}
	return waitIfRequested(ctx, cmd, client, job)
}

func waitIfRequested(ctx context.Context, cmd *cobra.Command, client *tune.Client, job *tune.Job) error {
	wait, _ := cmd.Flags().GetBool("wait")
	if wait && !job.Done() {
		interval, _ := cmd.Flags().GetDuration("interval")
		spinner, _ := pterm.DefaultSpinner.Start("Waiting for job " + job.ID)
		finished, err := client.Wait(ctx, job.ID, interval)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return err
		}
		job = finished
	}
	printJob(job)
	if strings.EqualFold(job.Status, tune.StatusFailed) {
		return errors.Newf("training job %s failed: %s", job.ID, job.Message)
	}
	return nil
}

func printJob(job *tune.Job) {
	pterm.Info.Printf("Job %s: %s\n", job.ID, job.Status)
	if job.ModelName != "" {
		pterm.Printf("  Model: %s\n", pterm.Green(job.ModelName))
	}
	if job.Message != "" {
		pterm.Printf("  %s\n", pterm.Gray(job.Message))
	}
}

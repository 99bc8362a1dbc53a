package commands

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/shopper/ai/gemini"
	"github.com/teranos/shopper/ai/provider"
	"github.com/teranos/shopper/ai/runner"
	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/db"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
	"github.com/teranos/shopper/logger"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// Default file names under paths.data_dir
const (
	productsCSV       = "products.csv"
	productsJSONL     = "products.jsonl"
	recommendations   = "recommendations.jsonl"
	formattedRecs     = "formatted-recommendations.jsonl"
	qaDataset         = "qa_dataset.jsonl"
	qaClassifierModel = "models/qa-classifier.json"
)

// addStageFlags registers the flags every generation stage shares
func addStageFlags(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringP("output", "o", "", "Output JSONL file (default under paths.data_dir)")
	cmd.Flags().Int("limit", defaultLimit, "Maximum records to generate (0 = pipeline.limit)")
	cmd.Flags().Int("batch-size", 0, "Records per remote batch (0 = pipeline.batch_size)")
	cmd.Flags().Int64("seed", 0, "Shuffle seed (0 = pipeline.seed)")
	cmd.Flags().Bool("fail-fast", false, "Abort on the first failed batch instead of reporting it")
	cmd.Flags().String("provider", "", "Chat provider: openrouter, anthropic, gemini, local")
	cmd.Flags().String("model", "", "Override the provider's model")
}

// stageFlags are the shared flags resolved against configuration
type stageFlags struct {
	output    string
	limit     int
	batchSize int
	seed      int64
	failFast  bool
	provider  string
	model     string
}

func readStageFlags(cmd *cobra.Command, cfg *am.Config, defaultOutput string) stageFlags {
	f := stageFlags{}
	f.output, _ = cmd.Flags().GetString("output")
	f.limit, _ = cmd.Flags().GetInt("limit")
	f.batchSize, _ = cmd.Flags().GetInt("batch-size")
	f.seed, _ = cmd.Flags().GetInt64("seed")
	f.failFast, _ = cmd.Flags().GetBool("fail-fast")
	f.provider, _ = cmd.Flags().GetString("provider")
	f.model, _ = cmd.Flags().GetString("model")

	if f.output == "" {
		f.output = cfg.DataPath(defaultOutput)
	}
	if f.limit <= 0 {
		f.limit = cfg.Pipeline.Limit
	}
	if f.batchSize <= 0 {
		f.batchSize = cfg.Pipeline.BatchSize
	}
	if !cmd.Flags().Changed("seed") {
		f.seed = cfg.Pipeline.Seed
	}
	f.failFast = f.failFast || cfg.Pipeline.FailFast
	return f
}

// inputArg returns the positional input or its default under paths.data_dir
func inputArg(args []string, cfg *am.Config, name string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return cfg.DataPath(name)
}

// session holds what a stage command opens and must close
type session struct {
	cfg     *am.Config
	db      *sql.DB
	metrics *pipeline.Metrics
	gen     *generate.Generator
	log     *zap.SugaredLogger
}

// openSession builds the generator for a stage command from the configuration the command already loaded
func openSession(ctx context.Context, cmd *cobra.Command, cfg *am.Config, flags stageFlags) (*session, error) {
	if cfg == nil {
		return nil, errors.AssertionFailedf("stage command opened a session without configuration")
	}
	log := logger.ComponentLogger("cli")

	var err error
	s := &session{cfg: cfg, metrics: pipeline.NewMetrics(), log: log}
	if cfg.Database.TrackUsage {
		s.db, err = db.OpenWithMigrations(cfg.GetDatabasePath(), log)
		if err != nil {
			return nil, errors.WithHint(err, "set database.track_usage = false to run without usage tracking")
		}
	}

	client, p, err := provider.NewAIClient(ctx, cfg, provider.Options{
		Provider: flags.provider,
		DB:       s.db,
		Logger:   logger.ComponentLogger("ai"),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Infow("Using provider", "provider", p)

	lib, err := prompt.NewLibrary(cfg.Paths.PromptsDir)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.gen = &generate.Generator{
		Runner: runner.New(client, runner.Config{
			Concurrency:       cfg.Pipeline.Concurrency,
			RequestsPerMinute: cfg.Pipeline.RequestsPerMinute,
			Model:             flags.model,
		}),
		Prompts:   lib,
		BatchSize: flags.batchSize,
		Sentences: cfg.Pipeline.Sentences,
		FailFast:  flags.failFast,
		Progress:  progressEmitter(cmd),
		Metrics:   s.metrics,
	}
	return s, nil
}

// Close exports run metrics and closes the usage database
func (s *session) Close() {
	if s.cfg != nil && s.cfg.Metrics.Textfile != "" && s.metrics != nil {
		if err := s.metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			s.log.Warnw("Failed to write metrics textfile", logger.FieldFile, s.cfg.Metrics.Textfile, logger.FieldError, err)
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

func progressEmitter(cmd *cobra.Command) pipeline.ProgressEmitter {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		return pipeline.NewJSONEmitter(os.Stderr)
	}
	return pipeline.NewCLIEmitter(verbosity)
}

// readJSONL resolves source (local path or go-getter URL) and decodes it
func readJSONL[T any](ctx context.Context, source string) ([]T, error) {
	path, cleanup, err := catalog.Resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return catalog.ReadJSONL[T](path)
}

// newClassifier builds an untrained classifier for the configured backend
func newClassifier(ctx context.Context, cfg *am.Config) (classifier.Trainable, error) {
	switch cfg.Classifier.Backend {
	case am.ClassifierService:
		return classifier.NewService(serviceConfig(cfg))
	case am.ClassifierEmbedding, "":
		embedder, err := newEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return classifier.NewEmbedding(embedder, cfg.Classifier.TopK), nil
	default:
		return nil, errors.NewInvalidRequestError("unknown classifier backend %q", cfg.Classifier.Backend)
	}
}

// loadClassifier reads a trained classifier written by `shopper classifier train`
func loadClassifier(ctx context.Context, cfg *am.Config, path string) (classifier.Trainable, error) {
	switch cfg.Classifier.Backend {
	case am.ClassifierService:
		return classifier.LoadService(path, serviceConfig(cfg))
	case am.ClassifierEmbedding, "":
		embedder, err := newEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return classifier.LoadEmbedding(path, embedder, cfg.Classifier.TopK)
	default:
		return nil, errors.NewInvalidRequestError("unknown classifier backend %q", cfg.Classifier.Backend)
	}
}

func serviceConfig(cfg *am.Config) classifier.ServiceConfig {
	return classifier.ServiceConfig{
		URL:     cfg.Classifier.URL,
		APIKey:  cfg.Classifier.APIKey,
		TopK:    cfg.Classifier.TopK,
		Timeout: time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
	}
}

func newEmbedder(ctx context.Context, cfg *am.Config) (*gemini.Embedder, error) {
	return gemini.NewEmbedder(ctx, gemini.EmbedderConfig{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.EmbeddingModel,
	})
}

func classifierPath(cmd *cobra.Command, cfg *am.Config) string {
	if path, _ := cmd.Flags().GetString("classifier"); path != "" {
		return path
	}
	return cfg.Classifier.ModelPath
}

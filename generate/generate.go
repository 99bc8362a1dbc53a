// Package generate implements the dataset stages: describe, recommend, format, qa and eval.
//
// Each stage loads its input, renders prompts from the prompt library, sends them through
// the runner a batch at a time and appends the parsed artifacts to a JSONL sink. Batch
// failures are reported next to the output and skipped unless FailFast is set.
package generate

import (
	"context"

	"github.com/teranos/shopper/ai/runner"
	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// Defaults shared by every stage
const (
	DefaultBatchSize = pipeline.DefaultBatchSize
	DefaultSentences = pipeline.DefaultSentences
	DefaultSeed      = 42
	DefaultLimit     = 100
)

// Generator carries what every stage needs
type Generator struct {
	Runner  *runner.Runner
	Prompts *prompt.Library

	// Classifier maps generated descriptions back to catalog product names.
	// Only recommend and qa use it.
	Classifier classifier.Classifier

	BatchSize int
	// Sentences is kept from completions whose prompt does not set its own count
	Sentences int
	FailFast  bool
	RunID     string

	Progress pipeline.ProgressEmitter
	Metrics  *pipeline.Metrics
}

// Output says where a stage writes and whether it resumes an earlier run
type Output struct {
	Path   string
	Resume bool
	Limit  int
}

func (g *Generator) batchSize() int {
	if g.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return g.BatchSize
}

func (g *Generator) prompt(name string) (*prompt.Prompt, error) {
	if g.Prompts == nil {
		return nil, errors.AssertionFailedf("generator has no prompt library")
	}
	return g.Prompts.Get(name)
}

// run opens the sink and failure report for out, runs stage over items and closes both
func run[In, Out any](ctx context.Context, g *Generator, out Output, stage *pipeline.Stage[In, Out], items []In) (pipeline.Summary, error) {
	if g.Runner == nil {
		return pipeline.Summary{}, errors.AssertionFailedf("generator has no runner")
	}

	sink, err := pipeline.OpenSink(out.Path, out.Resume)
	if err != nil {
		return pipeline.Summary{}, err
	}
	failures := pipeline.NewFailureLog(pipeline.FailureReportPath(out.Path))

	stage.RunID = g.RunID
	if stage.BatchSize == 0 {
		stage.BatchSize = g.batchSize()
	}
	stage.Limit = out.Limit
	stage.FailFast = g.FailFast
	stage.Sink = sink
	stage.Failures = failures
	stage.Progress = g.Progress
	stage.Metrics = g.Metrics

	summary, runErr := stage.Run(ctx, items)

	if err := failures.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return summary, runErr
}

func (g *Generator) sentences(p *prompt.Prompt) int {
	switch {
	case p.Sentences > 0:
		return p.Sentences
	case g.Sentences > 0:
		return g.Sentences
	}
	return DefaultSentences
}

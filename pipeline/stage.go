package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
)

// Summary describes one finished stage run
type Summary struct {
	Stage         string
	RunID         string
	Batches       int
	FailedBatches int
	Written       int
	Skipped       int
	FailureReport string
}

// Stage runs items through Process one batch at a time and writes the artifacts to Sink.
//
// Batches run sequentially and in order. A batch whose Process call fails is logged with
// the IDs of every record in it, appended to Failures, and skipped; the run continues
// unless FailFast is set. Cancelling ctx stops the run between batches.
type Stage[In, Out any] struct {
	Name      string
	RunID     string // generated when empty
	BatchSize int

	// OneToOne declares that Process returns exactly one artifact per input, in order.
	// Such stages skip already-written inputs before calling Process, and a result
	// count mismatch counts as a batch failure.
	OneToOne bool

	// Limit stops the run once this many artifacts were emitted, counting fast-forwarded
	// ones. Zero means no limit.
	Limit    int
	FailFast bool

	Process  func(ctx context.Context, batch []In) ([]Out, error)
	RecordID func(In) string

	// RecordIDs is used instead of RecordID when one input carries several records.
	RecordIDs func(In) []string

	Sink     *Sink
	Failures *FailureLog
	Progress ProgressEmitter
	Metrics  *Metrics
}

// Run processes items and returns what happened.
func (s *Stage[In, Out]) Run(ctx context.Context, items []In) (Summary, error) {
	if s.Process == nil || s.Sink == nil {
		return Summary{}, errors.AssertionFailedf("stage %s needs Process and Sink", s.Name)
	}

	runID := s.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	progress := s.Progress
	if progress == nil {
		progress = NopEmitter{}
	}
	metrics := s.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	ctx = logger.WithStage(logger.WithRunID(ctx, runID), s.Name)
	log := logger.LoggerFromContext(ctx)

	summary := Summary{Stage: s.Name, RunID: runID}
	metrics.RecordsRead.WithLabelValues(s.Name).Add(float64(len(items)))

	emitted := 0
	if s.OneToOne && s.Sink.Remaining() > 0 {
		skipped := s.Sink.Advance(len(items))
		items = items[skipped:]
		emitted += skipped
		summary.Skipped += skipped
		metrics.RecordsSkipped.WithLabelValues(s.Name).Add(float64(skipped))
		log.Infow("Fast forward, skipping already generated records", logger.FieldSkipped, skipped)
	}

	batches := Batches(items, s.BatchSize)
	summary.Batches = len(batches)
	progress.EmitStage(s.Name, len(batches))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			progress.EmitComplete(summary)
			return summary, errors.Wrapf(err, "%s interrupted before batch %d", s.Name, i)
		}
		if s.Limit > 0 && emitted >= s.Limit {
			break
		}

		start := time.Now()
		outs, err := s.Process(ctx, batch)
		if err == nil && s.OneToOne && len(outs) != len(batch) {
			err = errors.NewCountMismatchError(len(batch), len(outs))
		}
		metrics.BatchesTotal.WithLabelValues(s.Name).Inc()
		metrics.BatchDuration.WithLabelValues(s.Name).Observe(time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				progress.EmitComplete(summary)
				return summary, errors.Wrapf(ctx.Err(), "%s interrupted during batch %d", s.Name, i)
			}
			if ferr := s.reportFailure(ctx, runID, i, batch, err, &summary); ferr != nil {
				return summary, ferr
			}
			metrics.BatchesFailed.WithLabelValues(s.Name).Inc()
			progress.EmitBatch(i, err)
			if s.FailFast {
				progress.EmitComplete(summary)
				return summary, errors.Wrapf(err, "%s batch %d failed", s.Name, i)
			}
			continue
		}

		for _, out := range outs {
			if s.Limit > 0 && emitted >= s.Limit {
				break
			}
			written, err := s.Sink.Write(out)
			if err != nil {
				progress.EmitComplete(summary)
				return summary, err
			}
			emitted++
			if written {
				summary.Written++
				metrics.RecordsWritten.WithLabelValues(s.Name).Inc()
			} else {
				summary.Skipped++
				metrics.RecordsSkipped.WithLabelValues(s.Name).Inc()
			}
		}

		progress.EmitBatch(i, nil)
		log.Debugw("Batch done",
			logger.FieldBatch, i,
			logger.FieldBatchSize, len(batch),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}

	progress.EmitComplete(summary)
	log.Infow("Stage complete",
		"batches", summary.Batches,
		"failed_batches", summary.FailedBatches,
		"written", summary.Written,
		logger.FieldSkipped, summary.Skipped,
		logger.FieldOutput, s.Sink.Path(),
	)
	return summary, nil
}

func (s *Stage[In, Out]) reportFailure(ctx context.Context, runID string, index int, batch []In, cause error, summary *Summary) error {
	ids := s.recordIDs(batch)
	summary.FailedBatches++

	logger.LoggerFromContext(ctx).Warnw("Batch failed, records not written",
		logger.FieldBatch, index,
		logger.FieldRecordIDs, ids,
		logger.FieldError, cause.Error(),
	)

	if s.Failures == nil {
		return nil
	}
	summary.FailureReport = s.Failures.Path()
	return s.Failures.Record(BatchFailure{
		RunID:     runID,
		Stage:     s.Name,
		Batch:     index,
		RecordIDs: ids,
		Error:     cause.Error(),
	})
}

func (s *Stage[In, Out]) recordIDs(batch []In) []string {
	ids := make([]string, 0, len(batch))
	for i, item := range batch {
		var found []string
		switch {
		case s.RecordIDs != nil:
			found = s.RecordIDs(item)
		case s.RecordID != nil:
			found = []string{s.RecordID(item)}
		}

		before := len(ids)
		for _, id := range found {
			if strings.TrimSpace(id) != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == before {
			ids = append(ids, "#"+strconv.Itoa(i))
		}
	}
	return ids
}

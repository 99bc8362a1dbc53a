package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/shopper/errors"
)

type product struct {
	ID string
}

func products(n int) []product {
	out := make([]product, n)
	for i := range out {
		out[i] = product{ID: "p" + strconv.Itoa(i)}
	}
	return out
}

// echo returns one artifact per input and fails any batch containing a listed ID
func echo(failing ...string) func(context.Context, []product) ([]artifact, error) {
	return func(ctx context.Context, batch []product) ([]artifact, error) {
		out := make([]artifact, 0, len(batch))
		for _, p := range batch {
			for _, f := range failing {
				if p.ID == f {
					return nil, errors.Wrap(errors.ErrServiceUnavailable, "remote runner")
				}
			}
			idx, _ := strconv.Atoi(strings.TrimPrefix(p.ID, "p"))
			out = append(out, artifact{Index: idx})
		}
		return out, nil
	}
}

func newStage(t *testing.T, process func(context.Context, []product) ([]artifact, error), resume bool) (*Stage[product, artifact], string) {
	t.Helper()
	output := filepath.Join(t.TempDir(), "out.jsonl")
	sink, err := OpenSink(output, resume)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	failures := NewFailureLog(FailureReportPath(output))
	t.Cleanup(func() { failures.Close() })

	return &Stage[product, artifact]{
		Name:      "describe",
		BatchSize: 3,
		OneToOne:  true,
		Process:   process,
		RecordID:  func(p product) string { return p.ID },
		Sink:      sink,
		Failures:  failures,
		Metrics:   NewMetrics(),
	}, output
}

func TestStage_WritesAllBatchesInOrder(t *testing.T) {
	stage, output := newStage(t, echo(), false)

	summary, err := stage.Run(context.Background(), products(7))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 7, summary.Written)
	assert.NotEmpty(t, summary.RunID)
	require.NoError(t, stage.Sink.Close())

	lines := readLines(t, output)
	require.Len(t, lines, 7)
	for i, line := range lines {
		assert.Equal(t, `{"index":`+strconv.Itoa(i)+`}`, line)
	}
	assert.Equal(t, float64(7), testutil.ToFloat64(stage.Metrics.RecordsWritten.WithLabelValues("describe")))
}

func TestStage_FailedBatchIsReportedAndSkipped(t *testing.T) {
	stage, output := newStage(t, echo("p4"), false)
	stage.RunID = "run-1"

	summary, err := stage.Run(context.Background(), products(7))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 4, summary.Written)
	assert.Equal(t, FailureReportPath(output), summary.FailureReport)
	require.NoError(t, stage.Failures.Close())

	// Batches after the failure are still written
	require.NoError(t, stage.Sink.Close())
	assert.Equal(t, []string{`{"index":0}`, `{"index":1}`, `{"index":2}`, `{"index":6}`}, readLines(t, output))

	data, err := os.ReadFile(FailureReportPath(output))
	require.NoError(t, err)
	var failure BatchFailure
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &failure))
	assert.Equal(t, "run-1", failure.RunID)
	assert.Equal(t, "describe", failure.Stage)
	assert.Equal(t, 1, failure.Batch)
	assert.Equal(t, []string{"p3", "p4", "p5"}, failure.RecordIDs)
	assert.Contains(t, failure.Error, "service unavailable")

	assert.Equal(t, float64(1), testutil.ToFloat64(stage.Metrics.BatchesFailed.WithLabelValues("describe")))
}

func TestStage_FailedBatchesMatchReportLines(t *testing.T) {
	stage, output := newStage(t, echo("p1", "p7"), false)

	summary, err := stage.Run(context.Background(), products(9))
	require.NoError(t, err)
	require.NoError(t, stage.Failures.Close())

	assert.Equal(t, 2, summary.FailedBatches)
	assert.Len(t, readLines(t, FailureReportPath(output)), summary.FailedBatches)
	assert.Equal(t, 3, summary.Written)
}

func TestStage_RecordIDsExpandsGroupedInputs(t *testing.T) {
	stage, output := newStage(t, echo("p2"), false)
	stage.RecordIDs = func(p product) []string {
		if p.ID == "p1" {
			return nil
		}
		return []string{p.ID + "-a", p.ID + "-b"}
	}

	_, err := stage.Run(context.Background(), products(3))
	require.NoError(t, err)
	require.NoError(t, stage.Failures.Close())

	var failure BatchFailure
	lines := readLines(t, FailureReportPath(output))
	require.Len(t, lines, 1)
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &failure))
	// RecordIDs wins over RecordID and an input with no IDs falls back to its position
	assert.Equal(t, []string{"p0-a", "p0-b", "#1", "p2-a", "p2-b"}, failure.RecordIDs)
}

func TestStage_FailFast(t *testing.T) {
	stage, _ := newStage(t, echo("p1"), false)
	stage.FailFast = true

	summary, err := stage.Run(context.Background(), products(7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	assert.Contains(t, err.Error(), "batch 0")
	assert.Equal(t, 0, summary.Written)
}

func TestStage_CountMismatchIsBatchFailure(t *testing.T) {
	short := func(ctx context.Context, batch []product) ([]artifact, error) {
		return []artifact{{Index: 0}}, nil
	}
	stage, _ := newStage(t, short, false)
	stage.FailFast = true

	_, err := stage.Run(context.Background(), products(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCountMismatch))
}

func TestStage_OneToOneResumeSkipsProcessing(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(output, []byte("{\"index\":0}\n{\"index\":1}\n{\"index\":2}\n{\"index\":3}\n"), 0644))

	sink, err := OpenSink(output, true)
	require.NoError(t, err)

	var seen []string
	process := func(ctx context.Context, batch []product) ([]artifact, error) {
		for _, p := range batch {
			seen = append(seen, p.ID)
		}
		return echo()(ctx, batch)
	}

	stage := &Stage[product, artifact]{
		Name:      "describe",
		BatchSize: 3,
		OneToOne:  true,
		Process:   process,
		Sink:      sink,
	}

	summary, err := stage.Run(context.Background(), products(7))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Equal(t, []string{"p4", "p5", "p6"}, seen)
	assert.Equal(t, 4, summary.Skipped)
	assert.Equal(t, 3, summary.Written)
	assert.Len(t, readLines(t, output), 7)
}

func TestStage_LimitStopsEarly(t *testing.T) {
	calls := 0
	fanout := func(ctx context.Context, batch []product) ([]artifact, error) {
		calls++
		var out []artifact
		for range batch {
			out = append(out, artifact{}, artifact{}, artifact{})
		}
		return out, nil
	}
	stage, output := newStage(t, fanout, false)
	stage.OneToOne = false
	stage.Limit = 10

	summary, err := stage.Run(context.Background(), products(12))
	require.NoError(t, err)
	require.NoError(t, stage.Sink.Close())

	assert.Equal(t, 10, summary.Written)
	assert.Equal(t, 2, calls)
	assert.Len(t, readLines(t, output), 10)
}

func TestStage_CancelledContext(t *testing.T) {
	stage, _ := newStage(t, echo(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stage.Run(ctx, products(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordsWritten.WithLabelValues("describe").Add(3)

	path := filepath.Join(t.TempDir(), "shopper.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `shopper_records_written_total{stage="describe"} 3`)
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf)

	e.EmitStage("describe", 2)
	e.EmitBatch(0, nil)
	e.EmitBatch(1, errors.New("boom"))
	e.EmitComplete(Summary{Stage: "describe", Written: 20, FailedBatches: 1})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var last progressEvent
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &last))
	assert.Equal(t, "complete", last.Type)
	assert.EqualValues(t, 20, last.Data["written"])

	var failed progressEvent
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &failed))
	assert.Equal(t, false, failed.Data["ok"])
	assert.Equal(t, "boom", failed.Data["error"])
}

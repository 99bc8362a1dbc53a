package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
)

// ProgressEmitter reports stage progress to whoever runs the pipeline.
//
// Implementations include:
// - CLIEmitter: pterm progress bar and summaries on the terminal
// - JSONEmitter: structured JSON events for log collectors
// - NopEmitter: silence, for tests and library use
type ProgressEmitter interface {
	// EmitStage announces a stage and how many batches it will send.
	EmitStage(stage string, batches int)

	// EmitBatch reports that one batch finished, successfully or not.
	EmitBatch(index int, err error)

	// EmitComplete prints the final run summary.
	EmitComplete(summary Summary)
}

// CLIEmitter outputs a progress bar to the terminal using pterm
type CLIEmitter struct {
	verbosity int
	writer    io.Writer
	bar       *pterm.ProgressbarPrinter
}

// NewCLIEmitter creates a CLI progress emitter writing to stderr
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity, writer: os.Stderr}
}

// EmitStage starts a progress bar sized to the batch count
func (e *CLIEmitter) EmitStage(stage string, batches int) {
	pterm.Fprintln(e.writer, fmt.Sprintf("%s: %s batches", pterm.LightCyan(stage), pterm.Green(batches)))
	if batches == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(batches).
		WithTitle(stage).
		WithWriter(e.writer).
		Start()
	if err != nil {
		// A missing progress bar is not worth failing the run over
		return
	}
	e.bar = bar
}

// EmitBatch advances the progress bar
func (e *CLIEmitter) EmitBatch(index int, err error) {
	if e.bar != nil {
		e.bar.Increment()
	}
}

// EmitComplete stops the bar and prints the run summary
func (e *CLIEmitter) EmitComplete(summary Summary) {
	if e.bar != nil {
		_, _ = e.bar.Stop()
		e.bar = nil
	}

	if summary.FailedBatches > 0 {
		pterm.Warning.WithWriter(e.writer).Printfln("%s: %d of %d batches failed, see %s",
			summary.Stage, summary.FailedBatches, summary.Batches, summary.FailureReport)
	} else {
		pterm.Success.WithWriter(e.writer).Printfln("%s complete", summary.Stage)
	}
	if e.verbosity >= 1 {
		pterm.Fprintln(e.writer, fmt.Sprintf("  written: %d  skipped: %d  run: %s",
			summary.Written, summary.Skipped, summary.RunID))
	}
}

// progressEvent is one line of JSONEmitter output
type progressEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// JSONEmitter outputs structured JSON progress events
type JSONEmitter struct {
	encoder *json.Encoder
}

// NewJSONEmitter creates a JSON progress emitter writing to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

// EmitStage emits a stage event as JSON
func (e *JSONEmitter) EmitStage(stage string, batches int) {
	e.emit("stage", map[string]interface{}{"stage": stage, "batches": batches})
}

// EmitBatch emits a batch event as JSON
func (e *JSONEmitter) EmitBatch(index int, err error) {
	data := map[string]interface{}{"batch": index, "ok": err == nil}
	if err != nil {
		data["error"] = err.Error()
	}
	e.emit("batch", data)
}

// EmitComplete emits a completion event as JSON
func (e *JSONEmitter) EmitComplete(summary Summary) {
	e.emit("complete", map[string]interface{}{
		"stage":          summary.Stage,
		"run_id":         summary.RunID,
		"batches":        summary.Batches,
		"failed_batches": summary.FailedBatches,
		"written":        summary.Written,
		"skipped":        summary.Skipped,
	})
}

func (e *JSONEmitter) emit(kind string, data map[string]interface{}) {
	_ = e.encoder.Encode(progressEvent{Type: kind, Timestamp: time.Now(), Data: data})
}

// NopEmitter discards progress
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, int) {}
func (NopEmitter) EmitBatch(int, error)  {}
func (NopEmitter) EmitComplete(Summary)  {}

var (
	_ ProgressEmitter = (*CLIEmitter)(nil)
	_ ProgressEmitter = (*JSONEmitter)(nil)
	_ ProgressEmitter = NopEmitter{}
)

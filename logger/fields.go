package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldStage     = "stage"
	FieldComponent = "component"

	// Records
	FieldProductID  = "product_id"
	FieldRecordIDs  = "record_ids"
	FieldBatch      = "batch"
	FieldBatchSize  = "batch_size"
	FieldCount      = "count"
	FieldTotalCount = "total_count"
	FieldSkipped    = "skipped"

	// Remote calls
	FieldProvider   = "provider"
	FieldModel      = "model"
	FieldAttempt    = "attempt"
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Files and paths
	FieldFile   = "file"
	FieldOutput = "output"
	FieldLine   = "line"
)

type contextKey string

const (
	runIDKey contextKey = "logger_run_id"
	stageKey contextKey = "logger_stage"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithStage adds a pipeline stage name to the context for logging
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// RunIDFromContext returns the run ID stored by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, FieldStage, stage)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	func NewRunner(client provider.AIClient) *Runner {
//	    return &Runner{
//	        client: client,
//	        logger: logger.ComponentLogger("runner"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}

package llm

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/shopper/ai/tracker"
)

// Recorder writes one usage row per provider call.
// A Recorder built without a database records nothing.
type Recorder struct {
	tracker  *tracker.UsageTracker
	provider string
	log      *zap.SugaredLogger
}

// NewRecorder creates a usage recorder for provider
func NewRecorder(db *sql.DB, provider string, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Recorder{provider: provider, log: log}
	if db != nil {
		r.tracker = tracker.NewUsageTracker(db)
	}
	return r
}

// Call describes one completed or failed provider call
type Call struct {
	Request     ChatRequest
	Model       string
	Temperature float64
	MaxTokens   int
	Started     time.Time
	Usage       Usage
	Cost        float64
}

// Success records a completed call
func (r *Recorder) Success(ctx context.Context, call Call) {
	if r == nil || r.tracker == nil {
		return
	}
	finished := time.Now()
	total := call.Usage.TotalTokens
	if total == 0 {
		total = call.Usage.PromptTokens + call.Usage.CompletionTokens
	}
	usage := r.base(call)
	usage.ResponseTimestamp = &finished
	usage.PromptTokens = &call.Usage.PromptTokens
	usage.CompletionTokens = &call.Usage.CompletionTokens
	usage.TokensUsed = &total
	usage.Cost = &call.Cost
	usage.Success = true
	r.track(ctx, usage)
}

// Failure records a call that returned err
func (r *Recorder) Failure(ctx context.Context, call Call, err error) {
	if r == nil || r.tracker == nil || err == nil {
		return
	}
	finished := time.Now()
	msg := err.Error()
	usage := r.base(call)
	usage.ResponseTimestamp = &finished
	usage.ErrorMessage = &msg
	r.track(ctx, usage)
}

func (r *Recorder) base(call Call) *tracker.ModelUsage {
	return &tracker.ModelUsage{
		OperationType:    call.Request.Operation,
		EntityType:       "run",
		EntityID:         call.Request.RunID,
		ModelName:        call.Model,
		ModelProvider:    r.provider,
		ModelConfig:      tracker.NewModelConfig(&call.Temperature, &call.MaxTokens, call.Request.Structured()),
		RequestTimestamp: call.Started,
	}
}

func (r *Recorder) track(ctx context.Context, usage *tracker.ModelUsage) {
	// Usage of a call that was cancelled mid-flight is still recorded
	if err := r.tracker.TrackUsage(context.WithoutCancel(ctx), usage); err != nil {
		r.log.Warnw("Failed to track usage", "error", err, "model", usage.ModelName)
	}
}

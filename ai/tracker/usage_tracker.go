// Package tracker records one row per remote model call in the ai_model_usage table.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/shopper/errors"
)

// ModelUsage represents a record of AI model usage
type ModelUsage struct {
	ID                int        `json:"id" db:"id"`
	OperationType     string     `json:"operation_type" db:"operation_type"` // stage name, e.g. "describe"
	EntityType        string     `json:"entity_type" db:"entity_type"`
	EntityID          string     `json:"entity_id" db:"entity_id"` // run id
	ModelName         string     `json:"model_name" db:"model_name"`
	ModelProvider     string     `json:"model_provider" db:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty" db:"model_config"`
	RequestTimestamp  time.Time  `json:"request_timestamp" db:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty" db:"response_timestamp"`
	PromptTokens      *int       `json:"prompt_tokens,omitempty" db:"prompt_tokens"`
	CompletionTokens  *int       `json:"completion_tokens,omitempty" db:"completion_tokens"`
	TokensUsed        *int       `json:"tokens_used,omitempty" db:"tokens_used"`
	Cost              *float64   `json:"cost,omitempty" db:"cost"`
	Success           bool       `json:"success" db:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	Metadata          *string    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ModelConfig represents the configuration used for an AI model request
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Structured  bool     `json:"structured,omitempty"`
}

// UsageMetadata represents additional context for AI model usage
type UsageMetadata struct {
	OperationDetail string `json:"operation_detail,omitempty"`
	InputLength     *int   `json:"input_length,omitempty"`
	OutputLength    *int   `json:"output_length,omitempty"`
}

// UsageTracker provides functionality to track AI model usage
type UsageTracker struct {
	db *sql.DB
}

// NewUsageTracker creates a new AI usage tracker
func NewUsageTracker(db *sql.DB) *UsageTracker {
	return &UsageTracker{db: db}
}

// TrackUsage records AI model usage in the database.
// Timestamps are stored in UTC so range queries compare consistently.
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *ModelUsage) error {
	query := `
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, prompt_tokens,
			completion_tokens, tokens_used, cost, success, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var responseTime *time.Time
	if usage.ResponseTimestamp != nil {
		utc := usage.ResponseTimestamp.UTC()
		responseTime = &utc
	}

	_, err := t.db.ExecContext(ctx, query,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp.UTC(), responseTime, usage.PromptTokens,
		usage.CompletionTokens, usage.TokensUsed, usage.Cost,
		usage.Success, usage.ErrorMessage, usage.Metadata,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record usage for %s", usage.ModelName)
	}
	return nil
}

// GetUsageStats returns usage statistics for a given time period
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(prompt_tokens, 0)), 0) as prompt_tokens,
			COALESCE(SUM(COALESCE(completion_tokens, 0)), 0) as completion_tokens,
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT model_name) as unique_models,
			COUNT(DISTINCT NULLIF(entity_id, '')) as runs
		FROM ai_model_usage
		WHERE request_timestamp >= ?`

	var stats UsageStats
	err := t.db.QueryRowContext(ctx, query, since.UTC()).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.PromptTokens, &stats.CompletionTokens,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels, &stats.Runs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}

	return &stats, nil
}

// GetModelBreakdown returns usage breakdown by model
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model_name,
			model_provider,
			COUNT(*) as request_count,
			SUM(COALESCE(tokens_used, 0)) as total_tokens,
			SUM(COALESCE(cost, 0)) as total_cost,
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END) as avg_response_time_ms
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY total_cost DESC, request_count DESC`

	rows, err := t.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query model breakdown")
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}

	return breakdown, errors.Wrap(rows.Err(), "model breakdown rows")
}

// GetStageBreakdown returns usage grouped by stage (operation type)
func (t *UsageTracker) GetStageBreakdown(ctx context.Context, since time.Time) ([]StageBreakdown, error) {
	query := `
		SELECT
			operation_type,
			COUNT(*) as request_count,
			COUNT(CASE WHEN success = 0 THEN 1 END) as failed_count,
			SUM(COALESCE(cost, 0)) as total_cost
		FROM ai_model_usage
		WHERE request_timestamp >= ?
		GROUP BY operation_type
		ORDER BY operation_type`

	rows, err := t.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query stage breakdown")
	}
	defer rows.Close()

	var breakdown []StageBreakdown
	for rows.Next() {
		var sb StageBreakdown
		if err := rows.Scan(&sb.Stage, &sb.RequestCount, &sb.FailedCount, &sb.TotalCost); err != nil {
			return nil, errors.Wrap(err, "failed to scan stage breakdown")
		}
		breakdown = append(breakdown, sb)
	}

	return breakdown, errors.Wrap(rows.Err(), "stage breakdown rows")
}

// UsageStats represents aggregated usage statistics
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	PromptTokens       int     `json:"prompt_tokens"`
	CompletionTokens   int     `json:"completion_tokens"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
	Runs               int     `json:"runs"`
}

// ModelBreakdown represents usage statistics for a specific model
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCost         float64  `json:"total_cost"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// StageBreakdown represents usage statistics for one pipeline stage
type StageBreakdown struct {
	Stage        string  `json:"stage"`
	RequestCount int     `json:"request_count"`
	FailedCount  int     `json:"failed_count"`
	TotalCost    float64 `json:"total_cost"`
}

// NewModelConfig creates a ModelConfig and serializes it to JSON
func NewModelConfig(temperature *float64, maxTokens *int, structured bool) *string {
	if temperature == nil && maxTokens == nil && !structured {
		return nil
	}

	data, err := json.Marshal(ModelConfig{
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Structured:  structured,
	})
	if err != nil {
		return nil
	}

	jsonStr := string(data)
	return &jsonStr
}

// NewUsageMetadata creates UsageMetadata and serializes it to JSON
func NewUsageMetadata(metadata UsageMetadata) *string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}

	jsonStr := string(data)
	return &jsonStr
}

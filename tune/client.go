package tune

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/internal/httpclient"
	"github.com/teranos/shopper/logger"
)

// DefaultBaseModel is fine-tuned when no base model is configured
const DefaultBaseModel = "mistralai/Mistral-7B-Instruct-v0.1"

// Job states reported by the training service
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Config configures the training service client
type Config struct {
	URL       string
	APIKey    string
	BaseModel string
	Timeout   time.Duration
	Retry     llm.RetryPolicy
}

// Job is a fine-tuning job as reported by the service
type Job struct {
	ID        string `json:"job_id"`
	Status    string `json:"status"`
	BaseModel string `json:"base_model,omitempty"`
	// ModelName is the tuned model's id once the job completes
	ModelName string `json:"model_name,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Done reports whether the job reached a terminal state
func (j *Job) Done() bool {
	switch strings.ToUpper(j.Status) {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Client talks to the remote training service
type Client struct {
	baseURL    string
	apiKey     string
	baseModel  string
	retry      llm.RetryPolicy
	httpClient *httpclient.SaferClient
	log        *zap.SugaredLogger
}

// NewClient creates a training service client
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("training service URL not configured"),
			"set training.url or SHOPPER_TRAINING_URL",
		)
	}
	if cfg.APIKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrUnauthorized, "training service API key not configured"),
			"set SHOPPER_TRAINING_API_KEY or training.api_key",
		)
	}
	if cfg.BaseModel == "" {
		cfg.BaseModel = DefaultBaseModel
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = llm.DefaultRetryPolicy()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		baseModel:  cfg.BaseModel,
		retry:      cfg.Retry,
		httpClient: httpclient.New(cfg.Timeout),
		log:        logger.ComponentLogger("tune"),
	}, nil
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}

type submitRequest struct {
	BaseModel string    `json:"base_model"`
	Data      []Example `json:"data"`
}

// Submit uploads examples and starts a fine-tuning job
func (c *Client) Submit(ctx context.Context, examples []Example) (*Job, error) {
	if len(examples) == 0 {
		return nil, errors.NewInvalidRequestError("dataset is empty")
	}

	var job Job
	req := submitRequest{BaseModel: c.baseModel, Data: examples}
	if err := c.do(ctx, http.MethodPost, "/v1/train", req, &job); err != nil {
		return nil, errors.Wrap(err, "submit training job")
	}
	if job.ID == "" {
		return nil, errors.NewMalformedResponseError("training service returned no job id")
	}

	c.log.Infow("Submitted training job",
		"job_id", job.ID,
		"base_model", c.baseModel,
		"examples", len(examples),
	)
	return &job, nil
}

// Status fetches the current state of a job
func (c *Client) Status(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, errors.NewInvalidRequestError("job id is required")
	}
	var job Job
	if err := c.do(ctx, http.MethodGet, "/v1/train/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, errors.Wrapf(err, "training job %s", jobID)
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

// Wait polls a job every interval until it finishes or ctx is cancelled
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		c.log.Debugw("Training job still running", "job_id", jobID, "status", job.Status)

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
	}

	return c.retry.Do(ctx, c.log, "training", func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "failed to send request")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "failed to read response")
		}
		if resp.StatusCode != http.StatusOK {
			return llm.StatusError(resp.StatusCode, data)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrapf(errors.ErrMalformedResponse, "failed to unmarshal response: %v", err)
		}
		return nil
	})
}

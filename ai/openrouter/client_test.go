package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/errors"
	shoppertest "github.com/teranos/shopper/internal/testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	cfg.BaseURL = server.URL
	cfg.Retry = llm.RetryPolicy{Attempts: 3, Delay: time.Millisecond}

	client := NewClient(cfg)
	client.SetHTTPClient(server.Client()) // Override SSRF-safer client for localhost testing
	return client
}

func reply(w http.ResponseWriter, content string, usage llm.Usage) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChatCompletionResponse{
		ID:      "gen-1",
		Model:   "test-model",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"}},
		Usage:   usage,
	})
}

func TestClient_Configuration(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := NewClient(Config{APIKey: "test-key"})

		assert.Equal(t, DefaultModel, client.config.Model)
		assert.Equal(t, 0.2, *client.config.Temperature)
		assert.Equal(t, 1000, *client.config.MaxTokens)
		assert.Equal(t, DefaultBaseURL, client.baseURL)
		assert.Equal(t, llm.DefaultAttempts, client.config.Retry.Attempts)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		temp := 0.8
		tokens := 2000
		client := NewClient(Config{
			APIKey:      "test-key",
			Model:       "custom/model",
			Temperature: &temp,
			MaxTokens:   &tokens,
			BaseURL:     "https://proxy.example.com/v1/",
		})

		assert.Equal(t, "custom/model", client.config.Model)
		assert.Equal(t, 0.8, *client.config.Temperature)
		assert.Equal(t, 2000, *client.config.MaxTokens)
		assert.Equal(t, "https://proxy.example.com/v1", client.baseURL)
	})

	t.Run("IsConfigured", func(t *testing.T) {
		assert.True(t, NewClient(Config{APIKey: "k"}).IsConfigured())
		assert.False(t, NewClient(Config{}).IsConfigured())
	})
}

func TestClient_Chat(t *testing.T) {
	var got ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(w, "  A crisp sparkling water.  ", llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	}, Config{})

	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		SystemPrompt: "You are an expert on grocery products.",
		UserPrompt:   "Product: Sparkling Water",
	})
	require.NoError(t, err)

	assert.Equal(t, "A crisp sparkling water.", resp.Content)
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, 30, resp.Usage.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Product: Sparkling Water", got.Messages[1].Content)
	assert.Nil(t, got.ResponseFormat)
}

func TestClient_Chat_StructuredOutput(t *testing.T) {
	var raw map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		reply(w, `{"product_1":"chips","product_2":"salsa","product_3":"soda"}`, llm.Usage{})
	}, Config{})

	_, err := client.Chat(context.Background(), llm.ChatRequest{
		UserPrompt:     "What goes with guacamole?",
		ResponseFields: []string{"product_1", "product_2", "product_3"},
	})
	require.NoError(t, err)

	format, ok := raw["response_format"].(map[string]any)
	require.True(t, ok, "response_format should be sent")
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)["schema"].(map[string]any)
	assert.ElementsMatch(t, []any{"product_1", "product_2", "product_3"}, schema["required"])
}

func TestClient_Chat_Overrides(t *testing.T) {
	var got ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		reply(w, "ok", llm.Usage{})
	}, Config{})

	temperature := 0.9
	maxTokens := 500
	model := "custom/model"
	_, err := client.Chat(context.Background(), llm.ChatRequest{
		UserPrompt:  "test",
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &model,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.9, got.Temperature)
	assert.Equal(t, 500, got.MaxTokens)
	assert.Equal(t, "custom/model", got.Model)
}

func TestClient_Chat_MissingAPIKey(t *testing.T) {
	_, err := NewClient(Config{}).Chat(context.Background(), llm.ChatRequest{UserPrompt: "Hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	assert.Contains(t, err.Error(), "API key not configured")
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestClient_Chat_RetriesServerErrors(t *testing.T) {
	var requests int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		reply(w, "recovered", llm.Usage{})
	}, Config{})

	resp, err := client.Chat(context.Background(), llm.ChatRequest{UserPrompt: "test"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
}

func TestClient_Chat_DoesNotRetryClientErrors(t *testing.T) {
	var requests int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, `{"error":{"message":"invalid model"}}`, http.StatusBadRequest)
	}, Config{})

	_, err := client.Chat(context.Background(), llm.ChatRequest{UserPrompt: "test"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "invalid model")
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestClient_Chat_MalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"invalid json", "invalid json", "failed to unmarshal response"},
		{"empty choices", `{"choices":[]}`, "no response choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, Config{})

			_, err := client.Chat(context.Background(), llm.ChatRequest{UserPrompt: "test"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedResponse))
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), err.Error())
		})
	}
}

func TestClient_Chat_TracksUsage(t *testing.T) {
	conn := shoppertest.CreateTestDB(t)
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		reply(w, "ok", llm.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000, TotalTokens: 2_000_000})
	}, Config{DB: conn})

	req := llm.ChatRequest{UserPrompt: "test", Operation: "describe", RunID: "run-1"}
	_, err := client.Chat(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, 2, shoppertest.CountUsageRows(t, conn))

	var cost float64
	require.NoError(t, conn.QueryRow(
		`SELECT cost FROM ai_model_usage WHERE success = 1 AND entity_id = 'run-1' AND operation_type = 'describe'`,
	).Scan(&cost))
	assert.InDelta(t, 0.082, cost, 1e-9)
}

package classifier

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

// ServiceConfig configures the remote classifier service client
type ServiceConfig struct {
	URL     string
	APIKey  string
	TopK    int
	Timeout time.Duration
	Retry   llm.RetryPolicy
}

// Service trains and queries a classifier hosted by a remote service.
// Only the returned model id is kept locally.
type Service struct {
	baseURL    string
	apiKey     string
	topK       int
	retry      llm.RetryPolicy
	httpClient *httpclient.SaferClient
	log        *zap.SugaredLogger

	modelID  string
	order    []string
	examples map[string][]string
}

// NewService creates an untrained service classifier
func NewService(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("classifier service URL not configured"),
			"set classifier.url or use classifier.backend = \"embedding\"",
		)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = llm.DefaultRetryPolicy()
	}
	return &Service{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		topK:       cfg.TopK,
		retry:      cfg.Retry,
		httpClient: httpclient.NewWithOptions(cfg.Timeout, httpclient.Options{AllowPrivate: true}),
		log:        logger.ComponentLogger("classifier"),
		examples:   make(map[string][]string),
	}, nil
}

// SetHTTPClient allows overriding the HTTP client for testing
func (s *Service) SetHTTPClient(client *http.Client) {
	s.httpClient = httpclient.Wrap(client)
}

// ModelID is the id of the trained model, or "" before training
func (s *Service) ModelID() string {
	return s.modelID
}

// AddClass adds examples to a class, creating it on first use
func (s *Service) AddClass(name string, examples ...string) {
	if _, ok := s.examples[name]; !ok {
		s.order = append(s.order, name)
	}
	s.examples[name] = append(s.examples[name], examples...)
}

type trainClass struct {
	Name     string   `json:"name"`
	Examples []string `json:"examples"`
}

type trainRequest struct {
	Classes []trainClass `json:"classes"`
}

type trainResponse struct {
	ModelID string `json:"model_id"`
}

type classifyRequest struct {
	Texts []string `json:"texts"`
	TopK  int      `json:"top_k"`
}

type classifyResponse struct {
	Predictions [][]Prediction `json:"predictions"`
}

// Train uploads the classes and stores the returned model id
func (s *Service) Train(ctx context.Context) error {
	if len(s.order) == 0 {
		return errors.NewInvalidRequestError("classifier has no classes to train")
	}

	req := trainRequest{Classes: make([]trainClass, 0, len(s.order))}
	for _, name := range s.order {
		examples := s.examples[name]
		if len(examples) == 0 {
			examples = []string{name}
		}
		req.Classes = append(req.Classes, trainClass{Name: name, Examples: examples})
	}

	var resp trainResponse
	if err := s.post(ctx, "/v1/classifiers", req, &resp); err != nil {
		return errors.Wrap(err, "train classifier")
	}
	if resp.ModelID == "" {
		return errors.NewMalformedResponseError("classifier service returned no model id")
	}

	s.modelID = resp.ModelID
	s.log.Infow("Trained classifier", "model_id", s.modelID, "classes", len(s.order))
	return nil
}

// Classify sends texts to the trained model
func (s *Service) Classify(ctx context.Context, texts []string) ([][]Prediction, error) {
	if s.modelID == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("classifier service model is not trained"),
			"run `shopper classifier train` first",
		)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var resp classifyResponse
	path := "/v1/classifiers/" + url.PathEscape(s.modelID) + "/classify"
	if err := s.post(ctx, path, classifyRequest{Texts: texts, TopK: s.topK}, &resp); err != nil {
		return nil, errors.Wrap(err, "classify")
	}
	if len(resp.Predictions) != len(texts) {
		return nil, errors.NewCountMismatchError(len(texts), len(resp.Predictions))
	}

	for i := range resp.Predictions {
		resp.Predictions[i] = sortPredictions(resp.Predictions[i], s.topK)
	}
	return resp.Predictions, nil
}

func (s *Service) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	return s.retry.Do(ctx, s.log, "classifier", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.httpClient.Do(req)
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

type serviceFile struct {
	Kind    string   `json:"kind"`
	ModelID string   `json:"model_id"`
	Classes []string `json:"classes"`
}

const serviceKind = "service"

// Save persists the model id so later runs can classify without retraining
func (s *Service) Save(path string) error {
	if s.modelID == "" {
		return errors.NewInvalidRequestError("cannot save an untrained classifier")
	}
	return writeJSON(path, serviceFile{Kind: serviceKind, ModelID: s.modelID, Classes: s.order})
}

// LoadService reads a model id written by Save and connects it to the service
func LoadService(path string, cfg ServiceConfig) (*Service, error) {
	var file serviceFile
	if err := readJSON(path, serviceKind, &file); err != nil {
		return nil, err
	}

	s, err := NewService(cfg)
	if err != nil {
		return nil, err
	}
	s.modelID = file.ModelID
	s.order = file.Classes
	return s, nil
}

// Verify interfaces are implemented
var _ Trainable = (*Service)(nil)
var _ Trainable = (*Embedding)(nil)

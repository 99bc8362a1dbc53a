package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/ai/runner"
	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedClient answers by the operation (prompt name) of each request
type scriptedClient struct {
	mu       sync.Mutex
	requests []llm.ChatRequest
	answers  map[string]func(req llm.ChatRequest) (string, error)
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	answer, ok := c.answers[req.Operation]
	c.mu.Unlock()
	if !ok {
		return nil, errors.Newf("unexpected operation %q", req.Operation)
	}
	content, err := answer(req)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: content}, nil
}

func (c *scriptedClient) prompts(operation string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range c.requests {
		if r.Operation == operation {
			out = append(out, r.UserPrompt)
		}
	}
	return out
}

// keywordClassifier maps a text to the class of the first keyword it contains
type keywordClassifier struct {
	keywords []string
	classes  map[string]string
}

func (k *keywordClassifier) Classify(ctx context.Context, texts []string) ([][]classifier.Prediction, error) {
	out := make([][]classifier.Prediction, len(texts))
	for i, text := range texts {
		for _, kw := range k.keywords {
			if strings.Contains(strings.ToLower(text), kw) {
				out[i] = []classifier.Prediction{{ClassName: k.classes[kw], Score: 0.9}}
				break
			}
		}
		if out[i] == nil {
			out[i] = []classifier.Prediction{{ClassName: "unknown", Score: 0.1}}
		}
	}
	return out, nil
}

func groceryClassifier() *keywordClassifier {
	return &keywordClassifier{
		keywords: []string{"chips", "salsa", "soda"},
		classes: map[string]string{
			"chips": "Tortilla Chips",
			"salsa": "Chunky Salsa",
			"soda":  "Cola Soda",
		},
	}
}

func record(id, name string) catalog.Record {
	return catalog.NewRecord([]string{catalog.FieldProductID, catalog.FieldProductName}, []string{id, name})
}

func groceries() []catalog.Record {
	return []catalog.Record{
		record("1", "Tortilla Chips"),
		record("2", "Chunky Salsa"),
		record("3", "Cola Soda"),
	}
}

func described(records []catalog.Record) []DescribedProduct {
	out := make([]DescribedProduct, len(records))
	for i, r := range records {
		out[i] = DescribedProduct{Product: r, Descriptions: "About " + r.Name()}
	}
	return out
}

// quoted returns the first '...' quoted phrase in s
func quoted(s string) string {
	start := strings.Index(s, "'")
	end := strings.Index(s[start+1:], "'")
	return s[start+1 : start+1+end]
}

func recommendAnswer(llm.ChatRequest) (string, error) {
	return `{"product_1": "chips", "product_2": "salsa", "product_3": "soda"}`, nil
}

func expandAnswer(req llm.ChatRequest) (string, error) {
	return quoted(req.UserPrompt) + " is great.It pairs well.Buy it.Extra", nil
}

func newGenerator(t *testing.T, client llm.Client, cls classifier.Classifier) *Generator {
	t.Helper()
	lib, err := prompt.NewLibrary("")
	require.NoError(t, err)
	return &Generator{
		Runner:     runner.New(client, runner.Config{Concurrency: 2}),
		Prompts:    lib,
		Classifier: cls,
		BatchSize:  2,
		RunID:      "run-test",
	}
}

func outputPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "out.jsonl")
}

func TestDescribe(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Describe: func(req llm.ChatRequest) (string, error) {
			return "One.Two.Three.Four", nil
		},
	}}
	g := newGenerator(t, client, nil)
	out := outputPath(t)

	summary, err := g.Describe(context.Background(), groceries(), DescribeOptions{Output: Output{Path: out}})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Written)
	assert.Equal(t, 2, summary.Batches)

	got, err := catalog.ReadJSONL[DescribedProduct](out)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Tortilla Chips", got[0].Name())
	assert.Equal(t, "One. Two. Three", got[0].Descriptions)
	assert.Contains(t, client.prompts(prompt.Describe)[0], "Product: ")
}

func TestDescribe_LongUsesFiveSentences(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.DescribeLong: func(llm.ChatRequest) (string, error) { return "1.2.3.4.5.6", nil },
	}}
	g := newGenerator(t, client, nil)
	out := outputPath(t)

	_, err := g.Describe(context.Background(), groceries()[:1], DescribeOptions{Output: Output{Path: out}, Long: true})
	require.NoError(t, err)

	got, err := catalog.ReadJSONL[DescribedProduct](out)
	require.NoError(t, err)
	assert.Equal(t, "1. 2. 3. 4. 5", got[0].Descriptions)
}

func TestDescribe_ResumeFastForwards(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Describe: func(llm.ChatRequest) (string, error) { return "Fresh", nil },
	}}
	g := newGenerator(t, client, nil)
	out := outputPath(t)
	require.NoError(t, os.WriteFile(out, []byte(`{"product":{},"descriptions":"a"}`+"\n"+`{"product":{},"descriptions":"b"}`+"\n"), 0644))

	records := append(groceries(), record("4", "Sparkling Water"), record("5", "Lime"))
	summary, err := g.Describe(context.Background(), records, DescribeOptions{Output: Output{Path: out, Resume: true}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 3, summary.Written)

	// Only the records after the existing lines are sent
	assert.Len(t, client.prompts(prompt.Describe), 3)

	got, err := catalog.ReadJSONL[DescribedProduct](out)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "3", got[2].ID())
	assert.Equal(t, "5", got[4].ID())
}

func TestDescribe_FailedBatchIsReported(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Describe: func(req llm.ChatRequest) (string, error) {
			if strings.Contains(req.UserPrompt, "Chunky Salsa") {
				return "", errors.Wrap(errors.ErrServiceUnavailable, "overloaded")
			}
			return "Fresh", nil
		},
	}}
	g := newGenerator(t, client, nil)
	out := outputPath(t)

	summary, err := g.Describe(context.Background(), groceries(), DescribeOptions{Output: Output{Path: out}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 1, summary.Written)

	failures, err := catalog.ReadJSONL[pipeline.BatchFailure](pipeline.FailureReportPath(out))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, []string{"1", "2"}, failures[0].RecordIDs)
	assert.Equal(t, "run-test", failures[0].RunID)

	t.Run("fail fast", func(t *testing.T) {
		g.FailFast = true
		_, err := g.Describe(context.Background(), groceries(), DescribeOptions{Output: Output{Path: outputPath(t)}})
		assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	})
}

func TestSamples(t *testing.T) {
	products := described(groceries())

	samples := Samples(products, 2, 4)
	require.Len(t, samples, 2)
	if diff := cmp.Diff(catalog.Sample(products, 2, 2), samples[1], cmp.Comparer(func(a, b catalog.Record) bool {
		return a.ID() == b.ID()
	})); diff != "" {
		t.Errorf("second sample mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, Samples(products, 2, 5), 3)
	assert.Empty(t, Samples(products, 2, 0))
}

func TestRecommend(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Recommend: recommendAnswer,
		prompt.Expand:    expandAnswer,
	}}
	g := newGenerator(t, client, groceryClassifier())
	out := outputPath(t)

	summary, err := g.Recommend(context.Background(), described(groceries()), Output{Path: out, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Written)

	got, err := catalog.ReadJSONL[Recommendation](out)
	require.NoError(t, err)
	require.Len(t, got, 4)

	matches := map[string]string{"chips": "Tortilla Chips", "salsa": "Chunky Salsa", "soda": "Cola Soda"}
	for _, rec := range got {
		want, ok := matches[rec.RecommendedProduct.RealProductID]
		require.True(t, ok, "unexpected suggestion %q", rec.RecommendedProduct.RealProductID)
		assert.Equal(t, want, rec.RecommendedProduct.ProductName.Name())
		assert.Equal(t, "About "+want, rec.RecommendedProduct.ProductName.Descriptions)
		assert.NotEmpty(t, rec.Product.ID())
	}

	for _, p := range client.prompts(prompt.Expand) {
		assert.Contains(t, p, "would go well with")
	}
}

func TestRecommend_RequiresClassifier(t *testing.T) {
	g := newGenerator(t, &scriptedClient{}, nil)
	_, err := g.Recommend(context.Background(), described(groceries()), Output{Path: outputPath(t)})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestRecommend_UnknownClassFailsBatch(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Recommend: func(llm.ChatRequest) (string, error) {
			return `{"product_1": "bread", "product_2": "bread", "product_3": "bread"}`, nil
		},
		prompt.Expand: expandAnswer,
	}}
	g := newGenerator(t, client, groceryClassifier())
	out := outputPath(t)

	summary, err := g.Recommend(context.Background(), described(groceries()), Output{Path: out, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Written)
	assert.Equal(t, 1, summary.FailedBatches)

	// Each sampled product is listed on its own
	failures, err := catalog.ReadJSONL[pipeline.BatchFailure](pipeline.FailureReportPath(out))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Len(t, failures[0].RecordIDs, g.batchSize())
	for _, id := range failures[0].RecordIDs {
		assert.NotContains(t, id, ",")
		assert.Contains(t, []string{"1", "2", "3"}, id)
	}
}

func sampleRecommendations() []Recommendation {
	products := described(groceries())
	rec := func(owner DescribedProduct, simple string, match DescribedProduct) Recommendation {
		return Recommendation{Product: owner, RecommendedProduct: RecommendedProduct{RealProductID: simple, ProductName: match}}
	}
	return []Recommendation{
		rec(products[0], "salsa", products[1]),
		rec(products[1], "chips", products[0]),
		rec(products[0], "soda", products[2]),
		rec(products[0], "more salsa", products[1]),
	}
}

func TestGroupRecommendations(t *testing.T) {
	groups := GroupRecommendations(sampleRecommendations())
	require.Len(t, groups, 2)

	assert.Equal(t, "1", groups[0].Product.ID())
	assert.Len(t, groups[0].Recommendations, 3)
	assert.Equal(t, "2", groups[1].Product.ID())

	assert.Equal(t, "1. salsa (product id: 2), 2. soda (product id: 3), ", recommendationList(groups[0].Recommendations))
}

func TestFormat(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Format: func(llm.ChatRequest) (string, error) { return "Try these.They are great.Enjoy.More", nil },
	}}
	g := newGenerator(t, client, nil)
	out := outputPath(t)

	summary, err := g.Format(context.Background(), sampleRecommendations(), Output{Path: out, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Written)

	got, err := catalog.ReadJSONL[FormattedRecommendation](out)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Try these. They are great. Enjoy", got[0].Recommendation)
	assert.Equal(t, "Tortilla Chips", got[0].Product.Product.Name())
	assert.Len(t, got[0].Product.Recommendations, 3)

	var chips string
	for _, p := range client.prompts(prompt.Format) {
		if strings.Contains(p, "'Tortilla Chips' (product id: 1)") {
			chips = p
		}
	}
	require.NotEmpty(t, chips, "no format prompt for Tortilla Chips")
	assert.Contains(t, chips, "1. salsa (product id: 2), 2. soda (product id: 3), Explain")
}

func TestQA(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.Recommend: recommendAnswer,
		prompt.Expand:    expandAnswer,
		prompt.Question: func(req llm.ChatRequest) (string, error) {
			answer := strings.SplitN(req.UserPrompt, "\n", 2)[0]
			return "What goes with " + strings.Fields(answer)[0] + "? Asking for a party. Thanks.", nil
		},
	}}
	g := newGenerator(t, client, groceryClassifier())
	out := outputPath(t)

	summary, err := g.QA(context.Background(), groceries(), Output{Path: out})
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Written)

	got, err := catalog.ReadJSONL[QAPair](out)
	require.NoError(t, err)
	require.Len(t, got, 9)
	assert.Equal(t, QAPair{
		Question: "What goes with Tortilla? Asking for a party",
		Answer:   "Tortilla Chips is great.It pairs well.Buy it.Extra",
	}, got[0])
}

func TestEval(t *testing.T) {
	answer := func(req llm.ChatRequest) (string, error) {
		if req.SystemPrompt == "" {
			return "bare: " + req.UserPrompt, nil
		}
		return "expert: " + req.UserPrompt, nil
	}
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.EvalPlain:      answer,
		prompt.EvalEngineered: answer,
	}}
	g := newGenerator(t, client, nil)

	results, err := g.Eval(context.Background(), []string{"What goes with salmon?"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	const suffix = " Use Instacart products in your recommendations and include their product IDs."
	want := EvalResult{
		Question: "What goes with salmon?",
		Plain: EvalAnswers{
			WithoutSystem: "bare: What goes with salmon?",
			WithSystem:    "expert: What goes with salmon?",
		},
		Engineered: EvalAnswers{
			WithoutSystem: "bare: What goes with salmon?" + suffix,
			WithSystem:    "expert: What goes with salmon?" + suffix,
		},
	}
	if diff := cmp.Diff(want, results[0]); diff != "" {
		t.Errorf("Eval() mismatch (-want +got):\n%s", diff)
	}

	// one request per question, pass and system prompt variant
	var withSystem, withoutSystem int
	for _, req := range client.requests {
		if req.SystemPrompt == "" {
			withoutSystem++
		} else {
			withSystem++
			assert.Contains(t, req.SystemPrompt, "grocery product expert")
		}
	}
	assert.Equal(t, 2, withSystem)
	assert.Equal(t, 2, withoutSystem)
}

func TestEval_DefaultQuestions(t *testing.T) {
	client := &scriptedClient{answers: map[string]func(llm.ChatRequest) (string, error){
		prompt.EvalPlain:      func(req llm.ChatRequest) (string, error) { return "ok", nil },
		prompt.EvalEngineered: func(req llm.ChatRequest) (string, error) { return "ok", nil },
	}}
	g := newGenerator(t, client, nil)

	results, err := g.Eval(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, len(EvalQuestions))
	assert.Equal(t, EvalQuestions[0], results[0].Question)
	assert.Len(t, client.requests, 4*len(EvalQuestions))
}

// recordingTrainable captures the classes a classifier was taught
type recordingTrainable struct {
	classes map[string][]string
	trained bool
}

func (r *recordingTrainable) Classify(context.Context, []string) ([][]classifier.Prediction, error) {
	return nil, nil
}

func (r *recordingTrainable) AddClass(name string, examples ...string) {
	if r.classes == nil {
		r.classes = make(map[string][]string)
	}
	r.classes[name] = append(r.classes[name], examples...)
}

func (r *recordingTrainable) Train(context.Context) error { r.trained = true; return nil }
func (r *recordingTrainable) Save(string) error           { return nil }

func TestTrainClassifier(t *testing.T) {
	c := &recordingTrainable{}
	products := append(described(groceries()), DescribedProduct{Product: record("9", "")})
	products = append(products, QAProducts([]catalog.Record{record("4", "Lime")})...)

	require.NoError(t, TrainClassifier(context.Background(), c, products))
	assert.True(t, c.trained)
	assert.Len(t, c.classes, 4)
	assert.Equal(t, []string{"Tortilla Chips", "Tortilla Chips. About Tortilla Chips"}, c.classes["Tortilla Chips"])
	assert.Equal(t, []string{"Lime"}, c.classes["Lime"])

	err := TrainClassifier(context.Background(), &recordingTrainable{}, nil)
	assert.True(t, errors.IsInvalidRequestError(err))
}

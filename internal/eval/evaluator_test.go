package eval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/ranktune/internal/dataset"
	"github.com/haasonsaas/ranktune/internal/rerank"
)

// evalCorpus builds n labeled examples. The relevant passage text starts
// with "relevant" so a fake ranker can find the right answer by content.
func evalCorpus(n int) []dataset.Example {
	examples := make([]dataset.Example, n)
	for i := range examples {
		examples[i] = dataset.Example{
			Query:            fmt.Sprintf("query %d", i),
			RelevantPassages: []string{fmt.Sprintf("relevant %d", i)},
			HardNegatives: []string{
				fmt.Sprintf("neg %d.0", i),
				fmt.Sprintf("neg %d.1", i),
				fmt.Sprintf("neg %d.2", i),
				fmt.Sprintf("neg %d.3", i),
			},
			Label: i % 5,
		}
	}
	return examples
}

// fakeRanker scripts rerank responses. respond receives the 1-based call
// number and the request.
type fakeRanker struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, req *rerank.Request) (*rerank.Response, error)
}

func (f *fakeRanker) Rerank(_ context.Context, req *rerank.Request) (*rerank.Response, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.respond(call, req)
}

func (f *fakeRanker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// relevantIndex finds the position of the relevant passage among the
// request documents.
func relevantIndex(t *testing.T, req *rerank.Request) int {
	t.Helper()
	for i, doc := range req.Documents {
		if strings.HasPrefix(doc, "relevant") {
			return i
		}
	}
	t.Fatalf("no relevant document in request %+v", req.Documents)
	return -1
}

func pickIndex(index int) (*rerank.Response, error) {
	return &rerank.Response{
		ID:      "fake",
		Results: []rerank.Result{{Index: index, RelevanceScore: 0.9}},
	}, nil
}

func newTestEvaluator(t *testing.T, ranker Ranker, concurrency int) *Evaluator {
	t.Helper()
	evaluator, err := NewEvaluator(ranker, Options{Model: "rerank-english-v2.0", Concurrency: concurrency})
	if err != nil {
		t.Fatal(err)
	}
	return evaluator
}

func TestEvaluate_AllCorrect(t *testing.T) {
	ranker := &fakeRanker{respond: func(_ int, req *rerank.Request) (*rerank.Response, error) {
		return pickIndex(relevantIndex(t, req))
	}}

	report, err := newTestEvaluator(t, ranker, 1).Evaluate(context.Background(), evalCorpus(5))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	if report.Examples != 5 || report.Correct != 5 {
		t.Errorf("correct = %d/%d, want 5/5", report.Correct, report.Examples)
	}
	if report.Accuracy != 1.0 {
		t.Errorf("accuracy = %v, want 1.0", report.Accuracy)
	}
	if report.Model != "rerank-english-v2.0" {
		t.Errorf("model = %q", report.Model)
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
}

func TestEvaluate_CountsWrongAnswers(t *testing.T) {
	// The fake answers the first 6 examples correctly and misses the
	// last 4, so accuracy over 10 examples is 0.6.
	correctFor := func(limit int) *fakeRanker {
		return &fakeRanker{respond: func(call int, req *rerank.Request) (*rerank.Response, error) {
			relevant := relevantIndex(t, req)
			if call <= limit {
				return pickIndex(relevant)
			}
			return pickIndex((relevant + 1) % len(req.Documents))
		}}
	}

	baseline, err := newTestEvaluator(t, correctFor(6), 1).Evaluate(context.Background(), evalCorpus(10))
	if err != nil {
		t.Fatalf("baseline eval: %v", err)
	}
	if baseline.Correct != 6 || math.Abs(baseline.Accuracy-0.6) > 1e-9 {
		t.Errorf("baseline = %d correct, accuracy %v, want 6 and 0.6", baseline.Correct, baseline.Accuracy)
	}

	fineTuned, err := newTestEvaluator(t, correctFor(8), 1).Evaluate(context.Background(), evalCorpus(10))
	if err != nil {
		t.Fatalf("fine-tuned eval: %v", err)
	}
	if fineTuned.Correct != 8 || math.Abs(fineTuned.Accuracy-0.8) > 1e-9 {
		t.Errorf("fine-tuned = %d correct, accuracy %v, want 8 and 0.8", fineTuned.Correct, fineTuned.Accuracy)
	}

	comparison := Compare(baseline, fineTuned)
	if math.Abs(comparison.Delta-0.2) > 1e-9 {
		t.Errorf("delta = %v, want 0.2", comparison.Delta)
	}
}

func TestEvaluate_PredictionsKeepInputOrder(t *testing.T) {
	ranker := &fakeRanker{respond: func(_ int, req *rerank.Request) (*rerank.Response, error) {
		return pickIndex(relevantIndex(t, req))
	}}

	report, err := newTestEvaluator(t, ranker, 4).Evaluate(context.Background(), evalCorpus(10))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if report.Accuracy != 1.0 {
		t.Errorf("accuracy = %v, want 1.0", report.Accuracy)
	}
	for i, prediction := range report.Predictions {
		if prediction.Example != i {
			t.Errorf("prediction %d reports example %d", i, prediction.Example)
		}
		if prediction.Label != i%5 {
			t.Errorf("prediction %d label = %d, want %d", i, prediction.Label, i%5)
		}
	}
}

func TestEvaluate_AbortsOnRerankError(t *testing.T) {
	ranker := &fakeRanker{respond: func(call int, req *rerank.Request) (*rerank.Response, error) {
		if call == 3 {
			return nil, fmt.Errorf("api unavailable")
		}
		return pickIndex(relevantIndex(t, req))
	}}

	_, err := newTestEvaluator(t, ranker, 1).Evaluate(context.Background(), evalCorpus(10))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "example 2") {
		t.Errorf("error should name the failing example: %v", err)
	}
	// Sequential evaluation stops spending API calls at the failure.
	if ranker.callCount() != 3 {
		t.Errorf("ranker saw %d calls, want 3", ranker.callCount())
	}
}

func TestEvaluate_RejectsDegenerateResponses(t *testing.T) {
	tests := []struct {
		name    string
		respond func(call int, req *rerank.Request) (*rerank.Response, error)
		wantErr string
	}{
		{
			name: "empty results",
			respond: func(int, *rerank.Request) (*rerank.Response, error) {
				return &rerank.Response{ID: "fake"}, nil
			},
			wantErr: "no results",
		},
		{
			name: "index out of range",
			respond: func(int, *rerank.Request) (*rerank.Response, error) {
				return pickIndex(9)
			},
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := &fakeRanker{respond: tt.respond}
			_, err := newTestEvaluator(t, ranker, 1).Evaluate(context.Background(), evalCorpus(3))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluate_NoExamples(t *testing.T) {
	ranker := &fakeRanker{respond: func(int, *rerank.Request) (*rerank.Response, error) {
		return pickIndex(0)
	}}

	if _, err := newTestEvaluator(t, ranker, 1).Evaluate(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty test set")
	}
}

func TestNewEvaluator_Validation(t *testing.T) {
	if _, err := NewEvaluator(nil, Options{Model: "m"}); err == nil {
		t.Error("nil ranker accepted")
	}
	if _, err := NewEvaluator(&fakeRanker{}, Options{}); err == nil {
		t.Error("missing model accepted")
	}
}

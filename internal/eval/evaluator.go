// Package eval scores rerank models against a labeled test set. Each
// example asks the model to pick the most relevant of five candidate
// passages; the report is the fraction it gets right.
package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/ranktune/internal/dataset"
	"github.com/haasonsaas/ranktune/internal/infra"
	"github.com/haasonsaas/ranktune/internal/observability"
	"github.com/haasonsaas/ranktune/internal/rerank"
)

// Ranker is the rerank call the evaluator depends on. *rerank.Client
// satisfies it.
type Ranker interface {
	Rerank(ctx context.Context, req *rerank.Request) (*rerank.Response, error)
}

// Options controls evaluation behavior.
type Options struct {
	// Model is the rerank model id to score. Required.
	Model string

	// Concurrency is the number of in-flight rerank calls. At 1 the
	// examples are scored strictly in order and the run stops at the
	// first failure without spending further API calls.
	Concurrency int

	// Metrics may be nil.
	Metrics *observability.Metrics
}

// Evaluator measures choose-one-of-five accuracy for a rerank model.
type Evaluator struct {
	ranker  Ranker
	options Options
}

// NewEvaluator creates an evaluator for one model.
func NewEvaluator(ranker Ranker, opts Options) (*Evaluator, error) {
	if ranker == nil {
		return nil, fmt.Errorf("ranker is nil")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Evaluator{ranker: ranker, options: opts}, nil
}

// Evaluate scores every example and returns a report. Any rerank failure
// aborts the run: a partial accuracy over an unknown subset is worse than
// no number at all.
func (e *Evaluator) Evaluate(ctx context.Context, examples []dataset.Example) (*Report, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples to evaluate")
	}

	var predictions []Prediction
	var err error
	if e.options.Concurrency <= 1 {
		predictions, err = e.evaluateSequential(ctx, examples)
	} else {
		predictions, err = e.evaluateParallel(ctx, examples)
	}
	if err != nil {
		return nil, err
	}

	correct, accuracy := summarize(predictions)
	return &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Model:       e.options.Model,
		Examples:    len(predictions),
		Correct:     correct,
		Accuracy:    accuracy,
		Predictions: predictions,
	}, nil
}

func (e *Evaluator) evaluateSequential(ctx context.Context, examples []dataset.Example) ([]Prediction, error) {
	predictions := make([]Prediction, 0, len(examples))
	for i, example := range examples {
		prediction, err := e.evaluateExample(ctx, i, example)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		predictions = append(predictions, prediction)
	}
	return predictions, nil
}

func (e *Evaluator) evaluateParallel(ctx context.Context, examples []dataset.Example) ([]Prediction, error) {
	type indexed struct {
		index   int
		example dataset.Example
	}
	items := make([]indexed, len(examples))
	for i, example := range examples {
		items[i] = indexed{index: i, example: example}
	}

	predictions, errs := infra.ParallelProcess(ctx, items, e.options.Concurrency,
		func(ctx context.Context, item indexed) (Prediction, error) {
			return e.evaluateExample(ctx, item.index, item.example)
		})
	if i, err := infra.FirstError(errs); err != nil {
		return nil, fmt.Errorf("example %d: %w", i, err)
	}
	return predictions, nil
}

// evaluateExample asks the model for the single most relevant candidate
// and scores it against the labeled index.
func (e *Evaluator) evaluateExample(ctx context.Context, index int, example dataset.Example) (Prediction, error) {
	if err := example.Validate(); err != nil {
		return Prediction{}, err
	}

	candidates := example.Candidates()
	resp, err := e.ranker.Rerank(ctx, &rerank.Request{
		Model:     e.options.Model,
		Query:     example.Query,
		Documents: candidates,
		TopN:      1,
	})
	if err != nil {
		return Prediction{}, err
	}
	if resp == nil || len(resp.Results) == 0 {
		return Prediction{}, fmt.Errorf("rerank response has no results")
	}

	top := resp.Results[0]
	if top.Index < 0 || top.Index >= len(candidates) {
		return Prediction{}, fmt.Errorf("rerank result index %d out of range [0,%d)", top.Index, len(candidates))
	}

	correct := top.Index == example.Label
	if e.options.Metrics != nil {
		e.options.Metrics.RecordEvalOutcome(e.options.Model, correct)
	}

	return Prediction{
		Example:   index,
		Label:     example.Label,
		Predicted: top.Index,
		Score:     top.RelevanceScore,
		Correct:   correct,
	}, nil
}

// Package infra holds small concurrency helpers shared across the pipeline.
package infra

import (
	"context"
	"sync"
)

// ParallelProcess processes items with bounded concurrency. Results and
// errors are returned in input order regardless of completion order.
func ParallelProcess[T, R any](ctx context.Context, items []T, workers int, processor func(context.Context, T) (R, error)) ([]R, []error) {
	if workers <= 0 {
		workers = 1
	}
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]R, len(items))
	errors := make([]error, len(items))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, data T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errors[idx] = ctx.Err()
				return
			}

			result, err := processor(ctx, data)
			results[idx] = result
			errors[idx] = err
		}(i, item)
	}

	wg.Wait()
	return results, errors
}

// FirstError returns the first non-nil error and its index, or (-1, nil).
func FirstError(errs []error) (int, error) {
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}

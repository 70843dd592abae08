package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelProcess_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	results, errs := ParallelProcess(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		// Later items finish first to exercise ordering.
		time.Sleep(time.Duration(6-n) * time.Millisecond)
		return n * 10, nil
	})

	if _, err := FirstError(errs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, item := range items {
		if results[i] != item*10 {
			t.Errorf("results[%d] = %d, want %d", i, results[i], item*10)
		}
	}
}

func TestParallelProcess_BoundedConcurrency(t *testing.T) {
	var current, peak int32

	items := make([]int, 20)
	ParallelProcess(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		c := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&peak)
			if c <= m || atomic.CompareAndSwapInt32(&peak, m, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return n, nil
	})

	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestParallelProcess_ErrorsKeepIndex(t *testing.T) {
	items := []int{0, 1, 2, 3}
	boom := errors.New("boom")

	_, errs := ParallelProcess(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})

	idx, err := FirstError(errs)
	if idx != 2 {
		t.Errorf("first error index = %d, want 2", idx)
	}
	if !errors.Is(err, boom) {
		t.Errorf("first error = %v, want %v", err, boom)
	}
}

func TestParallelProcess_Empty(t *testing.T) {
	results, errs := ParallelProcess(context.Background(), nil, 4, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if results != nil || errs != nil {
		t.Error("expected nil results and errors for empty input")
	}
}

func TestFirstError_AllNil(t *testing.T) {
	idx, err := FirstError([]error{nil, nil, nil})
	if idx != -1 || err != nil {
		t.Errorf("FirstError = (%d, %v), want (-1, nil)", idx, err)
	}
}

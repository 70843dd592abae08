package dataset

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/haasonsaas/ranktune/internal/jsonl"
)

// Split file names under the output directory.
const (
	TrainFile = "train.jsonl"
	ValidFile = "valid.jsonl"
	TestFile  = "test.jsonl"
)

// FileResult reports what happened to one output file.
type FileResult struct {
	Path    string
	Records int
	Skipped bool
}

// WriteSplits serializes the splits under dir. Train and valid carry
// fine-tune records; test keeps full examples so evaluation has ground
// truth labels. With overwrite false an existing file is skipped and
// reported, not an error: a rerun after a partial failure completes the
// missing files without clobbering the rest.
func WriteSplits(dir string, splits Splits, overwrite bool) ([]FileResult, error) {
	results := make([]FileResult, 0, 3)

	write := func(name string, count int, writeFile func(path string) error) error {
		path := filepath.Join(dir, name)
		err := writeFile(path)
		if errors.Is(err, jsonl.ErrExists) {
			results = append(results, FileResult{Path: path, Records: count, Skipped: true})
			return nil
		}
		if err != nil {
			return fmt.Errorf("write %s split: %w", name, err)
		}
		results = append(results, FileResult{Path: path, Records: count})
		return nil
	}

	if err := write(TrainFile, len(splits.Train), func(path string) error {
		return jsonl.WriteFile(path, records(splits.Train), overwrite)
	}); err != nil {
		return results, err
	}
	if err := write(ValidFile, len(splits.Valid), func(path string) error {
		return jsonl.WriteFile(path, records(splits.Valid), overwrite)
	}); err != nil {
		return results, err
	}
	if err := write(TestFile, len(splits.Test), func(path string) error {
		return jsonl.WriteFile(path, splits.Test, overwrite)
	}); err != nil {
		return results, err
	}

	return results, nil
}

func records(examples []Example) []Record {
	out := make([]Record, len(examples))
	for i, example := range examples {
		out[i] = example.Record()
	}
	return out
}

// ReadExamples loads a test split written by WriteSplits and validates
// every example before evaluation touches it.
func ReadExamples(path string) ([]Example, error) {
	examples, err := jsonl.ReadFile[Example](path)
	if err != nil {
		return nil, err
	}
	for i, example := range examples {
		if err := example.Validate(); err != nil {
			return nil, fmt.Errorf("%s: example %d: %w", path, i, err)
		}
	}
	return examples, nil
}

package dataset

import "fmt"

// Counts sets the number of examples in each output split.
type Counts struct {
	Train int `yaml:"train" json:"train"`
	Valid int `yaml:"valid" json:"valid"`
	Test  int `yaml:"test" json:"test"`
}

// Total returns the number of examples the counts consume.
func (c Counts) Total() int {
	return c.Train + c.Valid + c.Test
}

// Validate checks the counts against the number of available examples.
func (c Counts) Validate(available int) error {
	if c.Train < 0 || c.Valid < 0 || c.Test < 0 {
		return fmt.Errorf("split counts must be non-negative: train %d, valid %d, test %d", c.Train, c.Valid, c.Test)
	}
	total := c.Total()
	if total == 0 {
		return fmt.Errorf("split counts sum to zero")
	}
	if total > available {
		return fmt.Errorf("split needs %d examples (train %d + valid %d + test %d) but only %d are available",
			total, c.Train, c.Valid, c.Test, available)
	}
	return nil
}

// Splits holds the three output sets.
type Splits struct {
	Train []Example
	Valid []Example
	Test  []Example
}

// Split cuts contiguous, disjoint slices off the head of examples in input
// order: train first, then valid, then test. No shuffling; the returned
// slices alias the input.
func Split(examples []Example, counts Counts) (Splits, error) {
	if err := counts.Validate(len(examples)); err != nil {
		return Splits{}, err
	}

	t := counts.Train
	v := counts.Valid
	return Splits{
		Train: examples[:t],
		Valid: examples[t : t+v],
		Test:  examples[t+v : t+v+counts.Test],
	}, nil
}

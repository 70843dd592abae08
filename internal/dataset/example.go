// Package dataset shapes raw corpus rows into rerank fine-tuning examples
// and splits them into training, validation, and test sets.
package dataset

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/ranktune/internal/casehold"
)

// numNegatives is the hard negative count per example: every candidate
// holding except the labeled one.
const numNegatives = casehold.NumHoldings - 1

// Example is a normalized corpus record: the query, the single relevant
// passage, and the remaining candidates as hard negatives. Label is the
// index of the relevant passage in the original candidate ordering and is
// kept so evaluation can score rerank output against ground truth.
type Example struct {
	Query            string   `json:"query"`
	RelevantPassages []string `json:"relevant_passages"`
	HardNegatives    []string `json:"hard_negatives"`
	Label            int      `json:"label"`
}

// Record is the fine-tune upload projection of an Example. The label is
// deliberately absent: the tuning endpoint learns from passage grouping
// alone.
type Record struct {
	Query            string   `json:"query" jsonschema:"minLength=1"`
	RelevantPassages []string `json:"relevant_passages" jsonschema:"minItems=1"`
	HardNegatives    []string `json:"hard_negatives" jsonschema:"minItems=1"`
}

// Normalize shapes one corpus row into an Example. The relevant passage is
// the labeled holding; the other four keep their relative order as hard
// negatives. Any malformed field fails the row rather than producing a
// degenerate example.
func Normalize(row casehold.Row) (Example, error) {
	if err := row.Validate(); err != nil {
		return Example{}, fmt.Errorf("example %d: %w", row.ExampleID, err)
	}

	holdings := row.Holdings()
	label := int(row.Label)

	negatives := make([]string, 0, numNegatives)
	for i, holding := range holdings {
		if i == label {
			continue
		}
		negatives = append(negatives, holding)
	}

	return Example{
		Query:            row.CitingPrompt,
		RelevantPassages: []string{holdings[label]},
		HardNegatives:    negatives,
		Label:            label,
	}, nil
}

// Record returns the fine-tune projection of the example.
func (e Example) Record() Record {
	return Record{
		Query:            e.Query,
		RelevantPassages: e.RelevantPassages,
		HardNegatives:    e.HardNegatives,
	}
}

// Candidates reconstructs the original five-candidate ordering by putting
// the relevant passage back at the labeled index. Call Validate first when
// the example came from outside this package.
func (e Example) Candidates() []string {
	candidates := make([]string, 0, len(e.HardNegatives)+len(e.RelevantPassages))
	candidates = append(candidates, e.HardNegatives[:e.Label]...)
	candidates = append(candidates, e.RelevantPassages...)
	candidates = append(candidates, e.HardNegatives[e.Label:]...)
	return candidates
}

// Validate checks the structural invariants of an example loaded from disk.
func (e Example) Validate() error {
	if strings.TrimSpace(e.Query) == "" {
		return fmt.Errorf("query is empty")
	}
	if len(e.RelevantPassages) != 1 {
		return fmt.Errorf("expected exactly 1 relevant passage, got %d", len(e.RelevantPassages))
	}
	if len(e.HardNegatives) != numNegatives {
		return fmt.Errorf("expected %d hard negatives, got %d", numNegatives, len(e.HardNegatives))
	}
	if e.Label < 0 || e.Label >= casehold.NumHoldings {
		return fmt.Errorf("label %d out of range [0,%d)", e.Label, casehold.NumHoldings)
	}
	if strings.TrimSpace(e.RelevantPassages[0]) == "" {
		return fmt.Errorf("relevant passage is empty")
	}
	for i, negative := range e.HardNegatives {
		if strings.TrimSpace(negative) == "" {
			return fmt.Errorf("hard negative %d is empty", i)
		}
	}
	return nil
}

// NormalizeAll shapes rows in order, failing on the first bad row.
func NormalizeAll(rows []casehold.Row) ([]Example, error) {
	examples := make([]Example, 0, len(rows))
	for i, row := range rows {
		example, err := Normalize(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		examples = append(examples, example)
	}
	return examples, nil
}

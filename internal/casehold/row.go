// Package casehold loads the CaseHOLD legal holdings corpus, either from
// the dataset hub's rows API or from a local JSON Lines dump.
//
// Each record pairs a citing prompt (the text surrounding a case citation)
// with five candidate holding statements. The label marks which candidate is
// the holding of the cited case; the other four are hard negatives mined
// from similar cases.
package casehold

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NumHoldings is the fixed number of candidate holdings per record.
const NumHoldings = 5

// Label is the index of the correct holding. The upstream corpus serves it
// as a JSON string; local dumps sometimes carry a bare number. Both decode.
type Label int

// UnmarshalJSON accepts both "2" and 2.
func (l *Label) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return fmt.Errorf("label is null")
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return fmt.Errorf("label is empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("label %s is not an integer", data)
	}
	*l = Label(n)
	return nil
}

// MarshalJSON writes the label as a number.
func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(l))
}

// Row is one raw corpus record. The five candidates keep their upstream
// field names as explicit slots.
type Row struct {
	ExampleID    int64  `json:"example_id"`
	CitingPrompt string `json:"citing_prompt"`
	Holding0     string `json:"holding_0"`
	Holding1     string `json:"holding_1"`
	Holding2     string `json:"holding_2"`
	Holding3     string `json:"holding_3"`
	Holding4     string `json:"holding_4"`
	Label        Label  `json:"label"`
}

// UnmarshalJSON decodes a row and rejects records without a label field.
// A missing label would otherwise decode to 0, which is a valid index, and
// the mislabeled record would poison training data and accuracy counts.
func (r *Row) UnmarshalJSON(data []byte) error {
	type alias Row
	aux := struct {
		*alias
		Label *Label `json:"label"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Label == nil {
		return fmt.Errorf("label field is missing")
	}
	r.Label = *aux.Label
	return nil
}

// Holdings returns the five candidates in upstream order.
func (r Row) Holdings() [NumHoldings]string {
	return [NumHoldings]string{r.Holding0, r.Holding1, r.Holding2, r.Holding3, r.Holding4}
}

// Validate checks that every field needed downstream is present and the
// label indexes a candidate.
func (r Row) Validate() error {
	if strings.TrimSpace(r.CitingPrompt) == "" {
		return fmt.Errorf("citing_prompt is empty")
	}
	for i, holding := range r.Holdings() {
		if strings.TrimSpace(holding) == "" {
			return fmt.Errorf("holding_%d is empty", i)
		}
	}
	if r.Label < 0 || int(r.Label) >= NumHoldings {
		return fmt.Errorf("label %d out of range [0,%d)", r.Label, NumHoldings)
	}
	return nil
}

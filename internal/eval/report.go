package eval

import "time"

// Report captures one evaluation pass of a rerank model over a test set.
type Report struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Model       string       `json:"model"`
	Examples    int          `json:"examples"`
	Correct     int          `json:"correct"`
	Accuracy    float64      `json:"accuracy"`
	Predictions []Prediction `json:"predictions"`
}

// Prediction records the model's pick for a single example. Example is the
// position in the evaluated set; Predicted and Label are candidate indexes.
type Prediction struct {
	Example   int     `json:"example"`
	Label     int     `json:"label"`
	Predicted int     `json:"predicted"`
	Score     float64 `json:"score"`
	Correct   bool    `json:"correct"`
}

// Comparison pairs a baseline report with a fine-tuned one.
type Comparison struct {
	Baseline  *Report `json:"baseline"`
	FineTuned *Report `json:"fine_tuned"`
	Delta     float64 `json:"delta"`
}

// Compare computes the accuracy delta of the fine-tuned model over the
// baseline. Positive delta means the fine-tune helped.
func Compare(baseline, fineTuned *Report) *Comparison {
	return &Comparison{
		Baseline:  baseline,
		FineTuned: fineTuned,
		Delta:     fineTuned.Accuracy - baseline.Accuracy,
	}
}

func summarize(predictions []Prediction) (correct int, accuracy float64) {
	for _, p := range predictions {
		if p.Correct {
			correct++
		}
	}
	if len(predictions) > 0 {
		accuracy = float64(correct) / float64(len(predictions))
	}
	return correct, accuracy
}

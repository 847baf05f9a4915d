// Package coherence computes the weighted coherence score used to gauge how
// well a builder's situation supports carrying an idea forward.
package coherence

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Dimension names accepted in a metrics file.
const (
	Flow            = "Flow"
	Body            = "Body"
	Finance         = "Finance"
	LongTerm        = "LongTerm"
	Externalization = "Externalization"
	Overload        = "Overload"
)

// Weights applied to each dimension. Overload counts against the score.
var Weights = map[string]float64{
	Flow:            0.30,
	Body:            0.15,
	Finance:         0.20,
	LongTerm:        0.20,
	Externalization: 0.10,
	Overload:        -0.15,
}

// State is the band a score falls into.
type State string

const (
	StateHigh       State = "High"
	StateStable     State = "Stable"
	StateFragmented State = "Fragmented"
	StateStrained   State = "Strained"
	StateCollapse   State = "Collapse"
)

// Result is a computed score and its band.
type Result struct {
	Score float64 `json:"coherence_score"`
	State State   `json:"state"`
}

// Sample returns the demonstration values used when no metrics file is given.
func Sample() map[string]float64 {
	return map[string]float64{
		Flow:            0.6,
		Body:            0.4,
		Finance:         0.5,
		LongTerm:        0.7,
		Externalization: 0.3,
		Overload:        0.2,
	}
}

// Score sums the weighted dimensions, rounded to three decimals. Unknown
// keys are ignored and missing dimensions count as zero.
func Score(metrics map[string]float64) float64 {
	return round3(weightedSum(metrics))
}

func weightedSum(metrics map[string]float64) float64 {
	var total float64
	for name, w := range Weights {
		total += metrics[name] * w
	}
	return total
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Classify maps a score onto its band.
func Classify(score float64) State {
	switch {
	case score >= 0.75:
		return StateHigh
	case score >= 0.55:
		return StateStable
	case score >= 0.35:
		return StateFragmented
	case score >= 0.15:
		return StateStrained
	default:
		return StateCollapse
	}
}

// Evaluate classifies the unrounded score and reports it rounded.
func Evaluate(metrics map[string]float64) Result {
	s := weightedSum(metrics)
	return Result{Score: round3(s), State: Classify(s)}
}

// LoadFile reads a JSON object of dimension values.
func LoadFile(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metrics file: %w", err)
	}
	var metrics map[string]float64
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("parsing metrics file %s: %w", path, err)
	}
	return metrics, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// Aggregator combines the rubric dimensions of a record into its total.
type Aggregator func(types.ScoreRecord) float64

// DefaultWeights are the dimension weights of the weighted aggregator.
var DefaultWeights = map[string]float64{
	"relevance": 0.40,
	"novelty":   0.25,
	"rigor":     0.15,
	"impact":    0.20,
}

// Weighted returns an aggregator computing sum(w_i * d_i) / sum(w_i) over
// the four dimensions. Missing weights fall back to DefaultWeights; unknown
// keys are rejected.
func Weighted(weights map[string]float64) (Aggregator, error) {
	w := make(map[string]float64, len(DefaultWeights))
	for k, v := range DefaultWeights {
		w[k] = v
	}
	for k, v := range weights {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, ok := DefaultWeights[key]; !ok {
			return nil, fmt.Errorf("unknown score dimension %q", k)
		}
		if v < 0 {
			return nil, fmt.Errorf("negative weight for %s", key)
		}
		w[key] = v
	}
	sum := w["relevance"] + w["novelty"] + w["rigor"] + w["impact"]
	if sum == 0 {
		return nil, fmt.Errorf("score weights sum to zero")
	}
	return func(s types.ScoreRecord) float64 {
		return (w["relevance"]*s.Relevance + w["novelty"]*s.Novelty +
			w["rigor"]*s.Rigor + w["impact"]*s.Impact) / sum
	}, nil
}

// Mean is the unweighted average of the four dimensions.
func Mean(s types.ScoreRecord) float64 {
	return (s.Relevance + s.Novelty + s.Rigor + s.Impact) / 4
}

// NewAggregator returns the aggregator named by cfg.Method.
func NewAggregator(cfg types.AggregateConfig) (Aggregator, error) {
	switch strings.ToLower(cfg.Method) {
	case "", "weighted":
		return Weighted(cfg.Weights)
	case "mean":
		return Mean, nil
	default:
		return nil, fmt.Errorf("unknown aggregation method %q (supported: %s)", cfg.Method, strings.Join(Methods(), ", "))
	}
}

// Methods lists the supported aggregation methods.
func Methods() []string {
	return []string{"mean", "weighted"}
}

// Apply clamps the record and sets its total, rounded to two decimals.
func Apply(agg Aggregator, s types.ScoreRecord) types.ScoreRecord {
	s.Clamp()
	s.Total = math.Round(agg(s)*100) / 100
	return s
}

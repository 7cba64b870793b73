// Package consensus turns raw execution history and validation results
// into a single trust weight per (tool, version).
//
// The pipeline has three stages: Collector derives normalized quality
// dimensions from the raw signals, AdjustWeights biases the default
// weight vector under operational constraints, and Scorer combines the
// two into one ConsensusScore and persists it.
package consensus

import (
	"fmt"
)

// Metric names recognized in execution records.
const (
	MetricLatencyMS = "latency_ms"
	MetricCost      = "cost"
)

// SecurityStage is the validation stage name that feeds the safety
// dimension.
const SecurityStage = "security_static"

// Config carries the scoring defaults and the thresholds at which
// operational constraints start biasing weights.
type Config struct {
	// DefaultWeights is the baseline weight per dimension. Must sum to
	// 1.0; Validate enforces this within Epsilon.
	DefaultWeights map[string]float64

	// NeutralScore is substituted for any dimension with no usable data.
	NeutralScore float64

	// LatencyCeilingMS is the latency at or beyond which the latency
	// dimension scores zero. Means are inverse-normalized against it.
	LatencyCeilingMS float64

	// CostCeilingPerCall is the per-call cost at or beyond which the
	// cost dimension scores zero.
	CostCeilingPerCall float64

	// LatencyCriticalMS: a latency budget at or below this makes the
	// latency constraint critical.
	LatencyCriticalMS float64

	// RiskCritical: a risk tolerance at or below this makes the safety
	// constraint critical.
	RiskCritical float64

	// CostCritical: a cost ceiling at or below this makes the cost
	// constraint critical.
	CostCritical float64

	// ConstraintBoost is the additive weight boost applied per triggered
	// constraint before renormalization.
	ConstraintBoost float64
}

// Epsilon is the tolerance for weight-sum checks.
const Epsilon = 1e-9

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		DefaultWeights: map[string]float64{
			"correctness": 0.40,
			"latency":     0.20,
			"resilience":  0.15,
			"safety":      0.15,
			"cost":        0.10,
		},
		NeutralScore:       0.5,
		LatencyCeilingMS:   1000,
		CostCeilingPerCall: 1.0,
		LatencyCriticalMS:  250,
		RiskCritical:       0.2,
		CostCritical:       0.01,
		ConstraintBoost:    0.2,
	}
}

// Validate checks the config is internally consistent.
func (c Config) Validate() error {
	if len(c.DefaultWeights) == 0 {
		return fmt.Errorf("consensus: default weights are required")
	}
	if _, ok := c.DefaultWeights["correctness"]; !ok {
		return fmt.Errorf("consensus: default weights must include correctness")
	}
	var sum float64
	for name, w := range c.DefaultWeights {
		if w < 0 {
			return fmt.Errorf("consensus: weight for %q is negative", name)
		}
		sum += w
	}
	if diff := sum - 1.0; diff > Epsilon || diff < -Epsilon {
		return fmt.Errorf("consensus: default weights sum to %v, want 1.0", sum)
	}
	if c.NeutralScore < 0 || c.NeutralScore > 1 {
		return fmt.Errorf("consensus: neutral score %v outside [0,1]", c.NeutralScore)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

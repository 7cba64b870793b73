package consensus

import (
	"github.com/petal-labs/quorum/core"
)

// AdjustWeights computes the effective weight vector from the defaults
// and the caller's operational constraints. It is a pure function: the
// input map is never mutated.
//
// Each constraint field that crosses its critical threshold adds the
// configured boost to the corresponding dimension; boosts from multiple
// triggered constraints compose by addition. The result is renormalized
// so its entries sum to exactly 1.0. With no constraints the defaults
// are returned unchanged (as a copy).
func AdjustWeights(cfg Config, defaults map[string]float64, constraints *core.OperationalConstraints) map[string]float64 {
	out := make(map[string]float64, len(defaults))
	for name, w := range defaults {
		out[name] = w
	}
	if constraints == nil {
		return out
	}

	if constraints.LatencyBudgetMS != nil && *constraints.LatencyBudgetMS <= cfg.LatencyCriticalMS {
		out[core.DimLatency] += cfg.ConstraintBoost
	}
	if constraints.RiskTolerance != nil && *constraints.RiskTolerance <= cfg.RiskCritical {
		out[core.DimSafety] += cfg.ConstraintBoost
	}
	if constraints.CostCeiling != nil && *constraints.CostCeiling <= cfg.CostCritical {
		out[core.DimCost] += cfg.ConstraintBoost
	}

	var sum float64
	for _, w := range out {
		sum += w
	}
	if sum <= 0 {
		return out
	}
	for name, w := range out {
		out[name] = w / sum
	}
	return out
}

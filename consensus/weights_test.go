package consensus

import (
	"testing"

	"github.com/petal-labs/quorum/core"
)

func ptr(v float64) *float64 { return &v }

func sumWeights(w map[string]float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

func TestAdjustWeightsNoConstraintsReturnsDefaults(t *testing.T) {
	cfg := DefaultConfig()

	got := AdjustWeights(cfg, cfg.DefaultWeights, nil)
	if len(got) != len(cfg.DefaultWeights) {
		t.Fatalf("adjusted weight count = %d, want %d", len(got), len(cfg.DefaultWeights))
	}
	for name, want := range cfg.DefaultWeights {
		if got[name] != want {
			t.Fatalf("weight[%s] = %v, want default %v", name, got[name], want)
		}
	}
}

func TestAdjustWeightsDoesNotMutateDefaults(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.DefaultWeights[core.DimLatency]

	constraints := &core.OperationalConstraints{LatencyBudgetMS: ptr(100)}
	_ = AdjustWeights(cfg, cfg.DefaultWeights, constraints)

	if cfg.DefaultWeights[core.DimLatency] != before {
		t.Fatalf("defaults mutated: latency weight = %v, want %v", cfg.DefaultWeights[core.DimLatency], before)
	}
}

func TestAdjustWeightsLatencyCriticalBoostsLatency(t *testing.T) {
	cfg := DefaultConfig()

	constraints := &core.OperationalConstraints{LatencyBudgetMS: ptr(100)}
	got := AdjustWeights(cfg, cfg.DefaultWeights, constraints)

	if got[core.DimLatency] <= cfg.DefaultWeights[core.DimLatency] {
		t.Fatalf("latency weight = %v, want > default %v", got[core.DimLatency], cfg.DefaultWeights[core.DimLatency])
	}
	if diff := sumWeights(got) - 1.0; diff > Epsilon || diff < -Epsilon {
		t.Fatalf("adjusted weights sum = %v, want 1.0", sumWeights(got))
	}
}

func TestAdjustWeightsLowRiskBoostsSafety(t *testing.T) {
	cfg := DefaultConfig()

	// Risk tolerance 0.05, well below the 0.2 critical threshold.
	constraints := &core.OperationalConstraints{RiskTolerance: ptr(0.05)}
	got := AdjustWeights(cfg, cfg.DefaultWeights, constraints)

	if got[core.DimSafety] <= cfg.DefaultWeights[core.DimSafety] {
		t.Fatalf("safety weight = %v, want > default %v", got[core.DimSafety], cfg.DefaultWeights[core.DimSafety])
	}
}

func TestAdjustWeightsBoostsCompose(t *testing.T) {
	cfg := DefaultConfig()

	constraints := &core.OperationalConstraints{
		LatencyBudgetMS: ptr(50),
		RiskTolerance:   ptr(0.1),
		CostCeiling:     ptr(0.005),
	}
	got := AdjustWeights(cfg, cfg.DefaultWeights, constraints)

	for _, name := range []string{core.DimLatency, core.DimSafety, core.DimCost} {
		if got[name] <= cfg.DefaultWeights[name]/2 {
			t.Fatalf("weight[%s] = %v, not boosted over renormalized default", name, got[name])
		}
	}
	if diff := sumWeights(got) - 1.0; diff > Epsilon || diff < -Epsilon {
		t.Fatalf("adjusted weights sum = %v, want 1.0", sumWeights(got))
	}
	// Relative to correctness, each boosted dimension must have gained.
	ratioBefore := cfg.DefaultWeights[core.DimLatency] / cfg.DefaultWeights[core.DimCorrectness]
	ratioAfter := got[core.DimLatency] / got[core.DimCorrectness]
	if ratioAfter <= ratioBefore {
		t.Fatalf("latency/correctness ratio = %v, want > %v after boost", ratioAfter, ratioBefore)
	}
}

func TestAdjustWeightsLooseConstraintsLeaveDefaults(t *testing.T) {
	cfg := DefaultConfig()

	// Present but above the critical thresholds: no boost applies.
	constraints := &core.OperationalConstraints{
		LatencyBudgetMS: ptr(5000),
		RiskTolerance:   ptr(0.9),
		CostCeiling:     ptr(10),
	}
	got := AdjustWeights(cfg, cfg.DefaultWeights, constraints)

	for name, want := range cfg.DefaultWeights {
		if got[name] != want {
			t.Fatalf("weight[%s] = %v, want unchanged %v", name, got[name], want)
		}
	}
}

package consensus

import (
	"github.com/petal-labs/quorum/core"
)

// Collector derives normalized quality dimensions from raw execution
// history and validation results.
//
// Collection never fails: malformed metric entries are skipped and any
// dimension with no usable data degrades to the configured neutral
// score instead of being omitted. A correctness dimension is always
// produced, even from fully empty inputs.
type Collector struct {
	cfg Config
}

// NewCollector creates a Collector with the given config.
func NewCollector(cfg Config) *Collector {
	return &Collector{cfg: cfg}
}

// Collect derives the dimension set for one (tool, version). The
// validation result may be nil when no validation has run yet.
func (c *Collector) Collect(history []core.ExecutionRecord, validation *core.ValidationResult) []core.MetricDimension {
	return []core.MetricDimension{
		{Name: core.DimCorrectness, Score: c.correctness(validation)},
		{Name: core.DimLatency, Score: c.latency(history)},
		{Name: core.DimResilience, Score: c.resilience(history)},
		{Name: core.DimSafety, Score: c.safety(validation)},
		{Name: core.DimCost, Score: c.cost(history)},
	}
}

// correctness prefers the overall validation score, falls back to the
// mean of stage scores, then to neutral. A present score of zero is a
// real result and scores zero, not neutral.
func (c *Collector) correctness(validation *core.ValidationResult) float64 {
	if validation == nil {
		return c.cfg.NeutralScore
	}
	if validation.Score != nil {
		return clamp01(*validation.Score)
	}
	if len(validation.Stages) > 0 {
		var sum float64
		for _, s := range validation.Stages {
			sum += s.Score
		}
		return clamp01(sum / float64(len(validation.Stages)))
	}
	return c.cfg.NeutralScore
}

// latency inverse-normalizes the mean recorded latency against the
// configured ceiling: zero latency scores 1, ceiling or beyond scores 0.
func (c *Collector) latency(history []core.ExecutionRecord) float64 {
	mean, ok := meanMetric(history, MetricLatencyMS)
	if !ok || c.cfg.LatencyCeilingMS <= 0 {
		return c.cfg.NeutralScore
	}
	return clamp01(1 - mean/c.cfg.LatencyCeilingMS)
}

// resilience is the success ratio over the full history.
func (c *Collector) resilience(history []core.ExecutionRecord) float64 {
	if len(history) == 0 {
		return c.cfg.NeutralScore
	}
	var successes int
	for _, rec := range history {
		if rec.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(history))
}

// safety reads the security_static validation stage when present.
func (c *Collector) safety(validation *core.ValidationResult) float64 {
	if stage, ok := validation.Stage(SecurityStage); ok {
		return clamp01(stage.Score)
	}
	return c.cfg.NeutralScore
}

// cost inverse-normalizes the mean recorded per-call cost against the
// configured ceiling.
func (c *Collector) cost(history []core.ExecutionRecord) float64 {
	mean, ok := meanMetric(history, MetricCost)
	if !ok || c.cfg.CostCeilingPerCall <= 0 {
		return c.cfg.NeutralScore
	}
	return clamp01(1 - mean/c.cfg.CostCeilingPerCall)
}

// meanMetric averages a named metric over the records that carry it as
// a numeric value. Non-numeric entries are skipped silently.
func meanMetric(history []core.ExecutionRecord, name string) (float64, bool) {
	var sum float64
	var n int
	for _, rec := range history {
		v, ok := rec.MetricValue(name)
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

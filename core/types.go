// Package core provides the foundational types for the Quorum decision core.
//
// This package contains:
//   - Identity types: ToolKey, Manifest
//   - Signal types: ExecutionRecord, ValidationResult, StageResult
//   - Scoring types: MetricDimension, OperationalConstraints, ConsensusScore
//   - Variant types: ArtifactVariant, PerformanceMetrics, VariantStatus
//   - Capabilities: SimilarityFunc
package core

import (
	"time"
)

// ToolKey identifies one versioned tool implementation.
type ToolKey struct {
	ToolID  string `json:"tool_id"`
	Version string `json:"version"`
}

// String returns the canonical "tool_id@version" form used in store keys
// and event payloads.
func (k ToolKey) String() string {
	return k.ToolID + "@" + k.Version
}

// Manifest describes a registered tool version. The decision core only
// needs identity and display metadata; content, transports, and schemas
// live with the collaborators that generate and invoke tools.
type Manifest struct {
	Key          ToolKey   `json:"key"`
	Description  string    `json:"description,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ExecutionRecord is one observed tool invocation outcome. Records are
// immutable once created and owned by the per-key history: appended only,
// never mutated or deleted.
//
// Metrics is deliberately loose at the boundary (callers report whatever
// they measured); consumers must tolerate missing or non-numeric entries.
type ExecutionRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	Success   bool           `json:"success"`
}

// MetricValue extracts a named metric as a float64. The second return is
// false when the metric is absent or not numeric.
func (r ExecutionRecord) MetricValue(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// StageResult is one named validation stage outcome.
type StageResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"` // normalized to [0,1]
}

// ValidationResult is the output of the external validation pipeline for
// one (tool, version). The core consumes these as-is; it never invokes or
// configures the pipeline.
//
// Score is a pointer so a genuine 0.0 result is distinguishable from a
// pipeline that produced no overall score: nil means absent, a non-nil
// zero means the tool validated at zero.
type ValidationResult struct {
	Score  *float64      `json:"validation_score,omitempty"` // normalized to [0,1]
	Stages []StageResult `json:"stages,omitempty"`           // ordered as the pipeline ran them
}

// Stage returns the named stage result, if present.
func (v *ValidationResult) Stage(name string) (StageResult, bool) {
	if v == nil {
		return StageResult{}, false
	}
	for _, s := range v.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Dimension names form a closed set. Every consensus score carries at
// least the correctness dimension.
const (
	DimCorrectness = "correctness"
	DimLatency     = "latency"
	DimResilience  = "resilience"
	DimSafety      = "safety"
	DimCost        = "cost"
)

// MetricDimension is one normalized quality axis contributing to a
// consensus score.
type MetricDimension struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`  // normalized to [0,1]
	Weight float64 `json:"weight"` // weight applied when combining
}

// OperationalConstraints are runtime-supplied pressure signals that bias
// scoring weights toward the pressing concern. A nil field leaves the
// corresponding default weight untouched.
type OperationalConstraints struct {
	LatencyBudgetMS *float64 `json:"latency_budget_ms,omitempty"` // p95 budget
	RiskTolerance   *float64 `json:"risk_tolerance,omitempty"`    // [0,1], lower = stricter
	CostCeiling     *float64 `json:"cost_ceiling,omitempty"`      // currency per call
}

// ConsensusScore is the combined trust weight for one (tool, version).
// The latest value per key overwrites the previous one; stores also keep
// an append-only history for audit.
type ConsensusScore struct {
	Key        ToolKey            `json:"key"`
	Scores     map[string]float64 `json:"scores"` // dimension name -> raw normalized score
	Weight     float64            `json:"weight"` // combined trust weight in [0,1]
	ComputedAt time.Time          `json:"computed_at"`
}

// VariantStatus is the lifecycle state of a stored artifact variant.
type VariantStatus string

const (
	VariantCandidate VariantStatus = "candidate"
	VariantActive    VariantStatus = "active"
	VariantRetired   VariantStatus = "retired"
)

// String returns the string representation of the VariantStatus.
func (s VariantStatus) String() string {
	return string(s)
}

// PerformanceMetrics are the raw performance observations for one variant.
// LatencyMS and MemoryMB are lower-is-better; SuccessRate and TestCoverage
// are higher-is-better and bounded in [0,1].
type PerformanceMetrics struct {
	LatencyMS    float64 `json:"latency_ms"`
	MemoryMB     float64 `json:"memory_mb"`
	SuccessRate  float64 `json:"success_rate"`
	TestCoverage float64 `json:"test_coverage"`
}

// ArtifactVariant is one stored candidate implementation for a tool,
// subject to deduplication via similarity clustering. Fingerprint is an
// opaque handle to the variant's content embedding; the core never
// computes or interprets it.
type ArtifactVariant struct {
	ID          string             `json:"id"`
	ToolID      string             `json:"tool_id"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	Status      VariantStatus      `json:"status"`
	Metrics     PerformanceMetrics `json:"metrics"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// SimilarityFunc reports pairwise variant similarity in [0,1]. It is an
// injected capability: the core consumes it, never computes embeddings.
type SimilarityFunc func(a, b ArtifactVariant) float64

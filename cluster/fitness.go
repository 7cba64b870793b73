// Package cluster deduplicates near-identical stored tool variants.
//
// The Optimizer partitions a tool's variants into similarity clusters
// and keeps only the fittest member of each cluster active; the rest
// are retired. Similarity is an injected capability; the package never
// computes embeddings itself.
package cluster

import (
	"fmt"

	"github.com/petal-labs/quorum/core"
)

// FitnessWeights weights the four performance terms of the fitness
// score. All weights must be positive for fitness to rank strictly
// better metric sets strictly higher.
type FitnessWeights struct {
	Latency      float64 `yaml:"latency"`
	Memory       float64 `yaml:"memory"`
	SuccessRate  float64 `yaml:"success_rate"`
	TestCoverage float64 `yaml:"test_coverage"`
}

// DefaultFitnessWeights returns the baseline fitness weighting.
func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		Latency:      0.30,
		Memory:       0.20,
		SuccessRate:  0.30,
		TestCoverage: 0.20,
	}
}

// Validate checks that every weight is positive.
func (w FitnessWeights) Validate() error {
	if w.Latency <= 0 || w.Memory <= 0 || w.SuccessRate <= 0 || w.TestCoverage <= 0 {
		return fmt.Errorf("cluster: fitness weights must all be positive, got %+v", w)
	}
	return nil
}

// Fitness is the scalar ranking value used to pick a cluster survivor.
//
// Latency and memory are lower-is-better, so they are inverted before
// weighting: a raw value of zero contributes a full 1.0 and the
// contribution decays strictly as the raw value grows, with no
// zero-valued denominator possible. Success rate and test coverage are
// already higher-is-better in [0,1] and are used directly.
func Fitness(m core.PerformanceMetrics, w FitnessWeights) float64 {
	return w.Latency*invert(m.LatencyMS) +
		w.Memory*invert(m.MemoryMB) +
		w.SuccessRate*clamp01(m.SuccessRate) +
		w.TestCoverage*clamp01(m.TestCoverage)
}

// invert maps a non-negative lower-is-better value onto (0,1] so that
// smaller raw values contribute more. Negative inputs are treated as
// zero rather than producing values above 1.
func invert(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return 1 / (1 + v)
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

package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/petal-labs/quorum/core"
	"github.com/petal-labs/quorum/registry"
)

// Scorer combines collected dimensions and adjusted weights into one
// consensus score per (tool, version) and persists the result.
type Scorer struct {
	cfg       Config
	store     registry.Store
	collector *Collector
	events    core.EventHandler
	now       func() time.Time
}

// ScorerOption customizes a Scorer.
type ScorerOption func(*Scorer)

// WithEventHandler attaches an event handler to the scorer.
func WithEventHandler(h core.EventHandler) ScorerOption {
	return func(s *Scorer) { s.events = h }
}

// WithClock overrides the scorer's time source.
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a Scorer backed by the given store.
func NewScorer(cfg Config, store registry.Store, opts ...ScorerOption) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("consensus: scorer requires a store")
	}
	s := &Scorer{
		cfg:       cfg,
		store:     store,
		collector: NewCollector(cfg),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score computes the consensus score for one (tool, version) from its
// execution history and latest validation result, then persists it.
//
// The computation itself never depends on the registry: a key with no
// registered manifest still yields a complete score, the store just
// drops the write. The weight is the dimension-weighted sum clamped to
// [0,1]; dimensions without a configured weight contribute zero. The
// returned score always includes a correctness entry.
func (s *Scorer) Score(ctx context.Context, key core.ToolKey, history []core.ExecutionRecord, validation *core.ValidationResult, constraints *core.OperationalConstraints) (core.ConsensusScore, error) {
	started := s.now()

	dims := s.collector.Collect(history, validation)
	weights := AdjustWeights(s.cfg, s.cfg.DefaultWeights, constraints)

	var combined float64
	scores := make(map[string]float64, len(dims))
	for i, d := range dims {
		w := weights[d.Name]
		dims[i].Weight = w
		scores[d.Name] = d.Score
		combined += d.Score * w
	}

	score := core.ConsensusScore{
		Key:        key,
		Scores:     scores,
		Weight:     clamp01(combined),
		ComputedAt: started,
	}

	if err := s.store.SetScore(ctx, score); err != nil {
		return core.ConsensusScore{}, fmt.Errorf("consensus: persist score for %s: %w", key, err)
	}

	s.emit(core.Event{
		Kind:    core.EventScoreComputed,
		Key:     key,
		Time:    s.now(),
		Elapsed: s.now().Sub(started),
		Payload: map[string]any{
			"weight":     score.Weight,
			"dimensions": len(dims),
		},
	})
	return score, nil
}

// ScoreStored is a convenience that scores a key from its stored
// execution history.
func (s *Scorer) ScoreStored(ctx context.Context, key core.ToolKey, validation *core.ValidationResult, constraints *core.OperationalConstraints) (core.ConsensusScore, error) {
	history, err := s.store.ListExecutions(ctx, key)
	if err != nil {
		return core.ConsensusScore{}, fmt.Errorf("consensus: load history for %s: %w", key, err)
	}
	return s.Score(ctx, key, history, validation, constraints)
}

func (s *Scorer) emit(e core.Event) {
	if s.events != nil {
		s.events(e)
	}
}

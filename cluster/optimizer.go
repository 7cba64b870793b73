package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/quorum/core"
	"github.com/petal-labs/quorum/registry"
)

// Strategy selects how an optimizer pass chooses which clusters to
// re-evaluate. The set is closed; unknown values are rejected at
// construction, never at run time.
type Strategy string

const (
	// StrategyFull re-evaluates every cluster on every pass.
	StrategyFull Strategy = "full"

	// StrategyIncremental only re-evaluates clusters containing a tool
	// touched since the previous pass.
	StrategyIncremental Strategy = "incremental"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFull, StrategyIncremental:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("cluster: unknown optimization strategy %q", s)
	}
}

// ErrPassInProgress is returned by Run when another pass already owns
// the optimizer.
var ErrPassInProgress = errors.New("cluster: optimizer pass already in progress")

// Config configures the Optimizer.
type Config struct {
	// SimilarityThreshold is the minimum pairwise similarity for two
	// variants to share a cluster.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MaxIterations bounds convergence within one pass.
	MaxIterations int `yaml:"max_iterations"`

	// Strategy selects the pass mode.
	Strategy Strategy `yaml:"strategy"`

	// FitnessWeights ranks cluster members.
	FitnessWeights FitnessWeights `yaml:"fitness_weights"`
}

// DefaultConfig returns the optimizer defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.96,
		MaxIterations:       10,
		Strategy:            StrategyIncremental,
		FitnessWeights:      DefaultFitnessWeights(),
	}
}

// Validate rejects misconfiguration eagerly.
func (c Config) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("cluster: similarity threshold %v outside [0,1]", c.SimilarityThreshold)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("cluster: max iterations must be at least 1, got %d", c.MaxIterations)
	}
	return c.FitnessWeights.Validate()
}

// Summary reports the outcome of one optimizer pass.
type Summary struct {
	PassID      string
	Iterations  int
	Clusters    int
	Transitions int
	Converged   bool
	Elapsed     time.Duration
}

// Optimizer retires redundant near-duplicate variants. It is a batch
// control-loop job: Run is single-owner (a second concurrent Run
// returns ErrPassInProgress) but may proceed alongside unrelated
// execution recording.
type Optimizer struct {
	cfg        Config
	store      registry.Store
	similarity core.SimilarityFunc
	events     core.EventHandler
	now        func() time.Time

	mu       sync.Mutex
	running  bool
	touched  map[string]bool // tool IDs changed since last pass
	lastPass time.Time       // start of the last completed pass
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithEventHandler attaches an event handler to the optimizer.
func WithEventHandler(h core.EventHandler) Option {
	return func(o *Optimizer) { o.events = h }
}

// WithClock overrides the optimizer's time source.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

// New creates an Optimizer. Configuration errors, including a strategy
// outside the closed set, fail here rather than at Run time.
func New(cfg Config, store registry.Store, similarity core.SimilarityFunc, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("cluster: optimizer requires a store")
	}
	if similarity == nil {
		return nil, fmt.Errorf("cluster: optimizer requires a similarity capability")
	}
	o := &Optimizer{
		cfg:        cfg,
		store:      store,
		similarity: similarity,
		now:        time.Now,
		touched:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Touch marks a tool's variants as changed so the next incremental pass
// re-evaluates their clusters. Incremental passes also pick up variants
// whose UpdatedAt is newer than the last completed pass on their own,
// so Touch is only needed for changes the store timestamps cannot see.
// Full-strategy passes ignore the mark.
func (o *Optimizer) Touch(toolID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.touched[toolID] = true
}

// Run executes one optimization pass: it partitions the stored variants
// into similarity clusters, ranks each cluster by fitness, marks the
// fittest member active and retires the rest, and repeats until no
// status changes occur or MaxIterations is reached.
//
// Run is idempotent: a second pass over an unchanged variant set makes
// zero additional transitions.
//
// Under the incremental strategy, a cluster is re-evaluated when its
// tool was touched, when any member's UpdatedAt is newer than the last
// completed pass, or on the first pass after construction (which
// evaluates everything, since no baseline exists yet).
func (o *Optimizer) Run(ctx context.Context) (Summary, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return Summary{}, ErrPassInProgress
	}
	o.running = true
	evaluateAll := o.cfg.Strategy == StrategyFull
	touched := o.touched
	o.touched = make(map[string]bool)
	lastPass := o.lastPass
	o.mu.Unlock()

	started := o.now()
	failed := false
	defer func() {
		o.mu.Lock()
		if failed {
			// A failed pass keeps its touch marks for the next one.
			for toolID := range touched {
				o.touched[toolID] = true
			}
		} else {
			o.lastPass = started
		}
		o.running = false
		o.mu.Unlock()
	}()

	sum := Summary{PassID: uuid.NewString()}

	o.emit(core.Event{
		Kind:   core.EventOptimizePassStarted,
		PassID: sum.PassID,
		Time:   started,
	})

	for sum.Iterations < o.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			failed = true
			return sum, err
		}
		sum.Iterations++

		clusters, transitions, err := o.sweep(ctx, sum.PassID, evaluateAll, touched, lastPass)
		if err != nil {
			failed = true
			return sum, err
		}
		sum.Clusters = clusters
		sum.Transitions += transitions

		if transitions == 0 {
			sum.Converged = true
			break
		}
	}

	sum.Elapsed = o.now().Sub(started)
	o.emit(core.Event{
		Kind:    core.EventOptimizePassFinished,
		PassID:  sum.PassID,
		Time:    o.now(),
		Elapsed: sum.Elapsed,
		Payload: map[string]any{
			"iterations":  sum.Iterations,
			"clusters":    sum.Clusters,
			"transitions": sum.Transitions,
			"converged":   sum.Converged,
		},
	})
	return sum, nil
}

// sweep performs one cluster recomputation over the current variant
// set. It returns the number of clusters seen and the number of status
// transitions applied.
func (o *Optimizer) sweep(ctx context.Context, passID string, evaluateAll bool, touched map[string]bool, lastPass time.Time) (int, int, error) {
	variants, err := o.store.ListVariants(ctx, "")
	if err != nil {
		return 0, 0, fmt.Errorf("cluster: list variants: %w", err)
	}

	byTool := make(map[string][]core.ArtifactVariant)
	var toolOrder []string
	for _, v := range variants {
		if _, seen := byTool[v.ToolID]; !seen {
			toolOrder = append(toolOrder, v.ToolID)
		}
		byTool[v.ToolID] = append(byTool[v.ToolID], v)
	}

	var clusters, transitions int
	for _, toolID := range toolOrder {
		evaluate := evaluateAll || lastPass.IsZero() || touched[toolID] ||
			changedSince(byTool[toolID], lastPass)
		for _, members := range o.partition(byTool[toolID]) {
			clusters++
			if !evaluate {
				continue
			}
			n, err := o.settle(ctx, passID, members)
			if err != nil {
				return clusters, transitions, err
			}
			transitions += n
		}
	}
	return clusters, transitions, nil
}

// changedSince reports whether any variant was written after the given
// pass start. Stores stamp UpdatedAt on every variant write, so this is
// the incremental strategy's change signal.
func changedSince(variants []core.ArtifactVariant, since time.Time) bool {
	for _, v := range variants {
		if v.UpdatedAt.After(since) {
			return true
		}
	}
	return false
}

// partition groups one tool's variants into clusters: each unclustered
// variant seeds a cluster and absorbs every remaining variant whose
// similarity to all current members meets the threshold, so members of
// one cluster are pairwise similar even under a non-transitive
// similarity function. Variants are pre-sorted by ID by the store, so
// partitioning is deterministic.
func (o *Optimizer) partition(variants []core.ArtifactVariant) [][]core.ArtifactVariant {
	var clusters [][]core.ArtifactVariant
	assigned := make([]bool, len(variants))
	for i, seed := range variants {
		if assigned[i] {
			continue
		}
		members := []core.ArtifactVariant{seed}
		assigned[i] = true
		for j := i + 1; j < len(variants); j++ {
			if assigned[j] {
				continue
			}
			if o.compatible(members, variants[j]) {
				members = append(members, variants[j])
				assigned[j] = true
			}
		}
		clusters = append(clusters, members)
	}
	return clusters
}

// compatible reports whether a candidate clears the similarity
// threshold against every current cluster member.
func (o *Optimizer) compatible(members []core.ArtifactVariant, candidate core.ArtifactVariant) bool {
	for _, m := range members {
		if o.similarity(m, candidate) < o.cfg.SimilarityThreshold {
			return false
		}
	}
	return true
}

// settle ranks one cluster by fitness and applies status transitions:
// the fittest member becomes active, every other member is retired.
// Ties go to the earliest member in store order.
func (o *Optimizer) settle(ctx context.Context, passID string, members []core.ArtifactVariant) (int, error) {
	best := 0
	bestFitness := Fitness(members[0].Metrics, o.cfg.FitnessWeights)
	for i := 1; i < len(members); i++ {
		if f := Fitness(members[i].Metrics, o.cfg.FitnessWeights); f > bestFitness {
			best, bestFitness = i, f
		}
	}

	var transitions int
	for i, v := range members {
		want := core.VariantRetired
		if i == best {
			want = core.VariantActive
		}
		if v.Status == want {
			continue
		}
		if err := o.store.SetVariantStatus(ctx, v.ID, want); err != nil {
			return transitions, fmt.Errorf("cluster: set variant %s status: %w", v.ID, err)
		}
		transitions++

		kind := core.EventVariantRetired
		if want == core.VariantActive {
			kind = core.EventVariantActivated
		}
		o.emit(core.Event{
			Kind:      kind,
			VariantID: v.ID,
			PassID:    passID,
			Time:      o.now(),
			Payload: map[string]any{
				"tool_id": v.ToolID,
				"fitness": Fitness(v.Metrics, o.cfg.FitnessWeights),
			},
		})
	}
	return transitions, nil
}

func (o *Optimizer) emit(e core.Event) {
	if o.events != nil {
		o.events(e)
	}
}

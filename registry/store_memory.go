package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/petal-labs/quorum/core"
)

// MemoryStore is an in-memory Store for tests and single-process use.
// A single RWMutex serializes all writes, which trivially satisfies the
// per-key append exclusion the Store contract requires.
type MemoryStore struct {
	mu         sync.RWMutex
	manifests  map[string]core.Manifest
	executions map[string][]core.ExecutionRecord
	latest     map[string]core.ConsensusScore
	history    map[string][]core.ConsensusScore
	variants   map[string]core.ArtifactVariant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests:  make(map[string]core.Manifest),
		executions: make(map[string][]core.ExecutionRecord),
		latest:     make(map[string]core.ConsensusScore),
		history:    make(map[string][]core.ConsensusScore),
		variants:   make(map[string]core.ArtifactVariant),
	}
}

// RegisterManifest inserts or replaces the manifest for its key.
func (s *MemoryStore) RegisterManifest(ctx context.Context, m core.Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.Key.String()] = cloneManifest(m)
	return nil
}

// GetManifest returns the manifest for a key.
func (s *MemoryStore) GetManifest(ctx context.Context, key core.ToolKey) (core.Manifest, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Manifest{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[key.String()]
	if !ok {
		return core.Manifest{}, false, nil
	}
	return cloneManifest(m), true, nil
}

// ListManifests returns all manifests in deterministic key order.
func (s *MemoryStore) ListManifests(ctx context.Context) ([]core.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.manifests))
	for k := range s.manifests {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]core.Manifest, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneManifest(s.manifests[k]))
	}
	return out, nil
}

// AppendExecution appends one record to the key's history.
func (s *MemoryStore) AppendExecution(ctx context.Context, key core.ToolKey, rec core.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	s.executions[k] = append(s.executions[k], cloneRecord(rec))
	return nil
}

// ListExecutions returns the key's history in append order.
func (s *MemoryStore) ListExecutions(ctx context.Context, key core.ToolKey) ([]core.ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.executions[key.String()]
	out := make([]core.ExecutionRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

// SetScore overwrites the latest score and appends to the audit history.
// Writes for keys with no registered manifest are dropped silently: the
// registry has no slot to hang them on.
func (s *MemoryStore) SetScore(ctx context.Context, score core.ConsensusScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := score.Key.String()
	if _, ok := s.manifests[k]; !ok {
		return nil
	}
	clone := cloneScore(score)
	s.latest[k] = clone
	s.history[k] = append(s.history[k], clone)
	return nil
}

// GetScore returns the latest score for a key.
func (s *MemoryStore) GetScore(ctx context.Context, key core.ToolKey) (core.ConsensusScore, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.ConsensusScore{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.latest[key.String()]
	if !ok {
		return core.ConsensusScore{}, false, nil
	}
	return cloneScore(sc), true, nil
}

// ScoreHistory returns every persisted score for a key, oldest first.
func (s *MemoryStore) ScoreHistory(ctx context.Context, key core.ToolKey) ([]core.ConsensusScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.history[key.String()]
	out := make([]core.ConsensusScore, 0, len(hist))
	for _, sc := range hist {
		out = append(out, cloneScore(sc))
	}
	return out, nil
}

// UpsertVariant inserts or replaces a stored variant by ID. A zero
// UpdatedAt is stamped with the current time so the write registers as
// a change.
func (s *MemoryStore) UpsertVariant(ctx context.Context, v core.ArtifactVariant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
	return nil
}

// ListVariants returns variants for a tool in deterministic ID order.
func (s *MemoryStore) ListVariants(ctx context.Context, toolID string) ([]core.ArtifactVariant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.variants))
	for id, v := range s.variants {
		if toolID != "" && v.ToolID != toolID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]core.ArtifactVariant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.variants[id])
	}
	return out, nil
}

// SetVariantStatus transitions one variant's lifecycle status and
// stamps its UpdatedAt.
func (s *MemoryStore) SetVariantStatus(ctx context.Context, variantID string, status core.VariantStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	if !ok {
		return ErrVariantNotFound
	}
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	s.variants[variantID] = v
	return nil
}

var _ Store = (*MemoryStore)(nil)

func cloneManifest(in core.Manifest) core.Manifest {
	out := in
	out.Tags = append([]string(nil), in.Tags...)
	return out
}

func cloneRecord(in core.ExecutionRecord) core.ExecutionRecord {
	out := in
	if in.Metrics != nil {
		out.Metrics = make(map[string]any, len(in.Metrics))
		for k, v := range in.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

func cloneScore(in core.ConsensusScore) core.ConsensusScore {
	out := in
	if in.Scores != nil {
		out.Scores = make(map[string]float64, len(in.Scores))
		for k, v := range in.Scores {
			out.Scores[k] = v
		}
	}
	return out
}

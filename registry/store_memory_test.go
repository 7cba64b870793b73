package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petal-labs/quorum/core"
)

func testKey() core.ToolKey {
	return core.ToolKey{ToolID: "summarize", Version: "1.0.0"}
}

func registerTestManifest(t *testing.T, store Store, key core.ToolKey) {
	t.Helper()
	err := store.RegisterManifest(context.Background(), core.Manifest{
		Key:          key,
		Description:  "test tool",
		RegisteredAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RegisterManifest() error = %v", err)
	}
}

func TestMemoryStoreManifestRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey()

	if _, ok, err := store.GetManifest(ctx, key); err != nil || ok {
		t.Fatalf("GetManifest() before register = ok %t, err %v; want false, nil", ok, err)
	}

	registerTestManifest(t, store, key)

	got, ok, err := store.GetManifest(ctx, key)
	if err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}
	if !ok {
		t.Fatal("GetManifest() ok = false, want true")
	}
	if got.Key != key || got.Description != "test tool" {
		t.Fatalf("GetManifest() = %+v, want key %s", got, key)
	}

	all, err := store.ListManifests(ctx)
	if err != nil {
		t.Fatalf("ListManifests() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListManifests() len = %d, want 1", len(all))
	}
}

func TestMemoryStoreAppendExecutionPreservesOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey()

	for i, latency := range []float64{150, 180, 200} {
		err := store.AppendExecution(ctx, key, core.ExecutionRecord{
			Timestamp: time.Now(),
			Metrics:   map[string]any{"latency_ms": latency},
			Success:   i < 2,
		})
		if err != nil {
			t.Fatalf("AppendExecution() error = %v", err)
		}
	}

	recs, err := store.ListExecutions(ctx, key)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("ListExecutions() len = %d, want 3", len(recs))
	}
	if v, _ := recs[2].MetricValue("latency_ms"); v != 200 {
		t.Fatalf("last record latency = %v, want 200", v)
	}
	if recs[2].Success {
		t.Fatal("last record Success = true, want false")
	}
}

func TestMemoryStoreSetScoreRequiresManifest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey()

	score := core.ConsensusScore{
		Key:        key,
		Scores:     map[string]float64{"correctness": 0.9},
		Weight:     0.8,
		ComputedAt: time.Now(),
	}

	// Unregistered key: the write is silently dropped.
	if err := store.SetScore(ctx, score); err != nil {
		t.Fatalf("SetScore() for unregistered key error = %v", err)
	}
	if _, ok, _ := store.GetScore(ctx, key); ok {
		t.Fatal("GetScore() ok = true after dropped write, want false")
	}

	registerTestManifest(t, store, key)
	if err := store.SetScore(ctx, score); err != nil {
		t.Fatalf("SetScore() error = %v", err)
	}

	got, ok, err := store.GetScore(ctx, key)
	if err != nil {
		t.Fatalf("GetScore() error = %v", err)
	}
	if !ok || got.Weight != 0.8 {
		t.Fatalf("GetScore() = %+v, ok %t; want weight 0.8, true", got, ok)
	}
}

func TestMemoryStoreScoreHistoryAccumulates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey()
	registerTestManifest(t, store, key)

	for _, weight := range []float64{0.5, 0.6, 0.7} {
		err := store.SetScore(ctx, core.ConsensusScore{
			Key:    key,
			Scores: map[string]float64{"correctness": weight},
			Weight: weight,
		})
		if err != nil {
			t.Fatalf("SetScore() error = %v", err)
		}
	}

	latest, ok, err := store.GetScore(ctx, key)
	if err != nil || !ok {
		t.Fatalf("GetScore() = ok %t, err %v; want true, nil", ok, err)
	}
	if latest.Weight != 0.7 {
		t.Fatalf("latest weight = %v, want 0.7 (latest write wins)", latest.Weight)
	}

	history, err := store.ScoreHistory(ctx, key)
	if err != nil {
		t.Fatalf("ScoreHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("ScoreHistory() len = %d, want 3", len(history))
	}
	if history[0].Weight != 0.5 || history[2].Weight != 0.7 {
		t.Fatalf("history order = %v..%v, want 0.5..0.7", history[0].Weight, history[2].Weight)
	}
}

func TestMemoryStoreVariantLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	variants := []core.ArtifactVariant{
		{ID: "var-b", ToolID: "summarize", Status: core.VariantCandidate},
		{ID: "var-a", ToolID: "summarize", Status: core.VariantCandidate},
		{ID: "var-c", ToolID: "translate", Status: core.VariantCandidate},
	}
	for _, v := range variants {
		if err := store.UpsertVariant(ctx, v); err != nil {
			t.Fatalf("UpsertVariant(%s) error = %v", v.ID, err)
		}
	}

	got, err := store.ListVariants(ctx, "summarize")
	if err != nil {
		t.Fatalf("ListVariants() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "var-a" || got[1].ID != "var-b" {
		t.Fatalf("ListVariants(summarize) = %+v, want var-a then var-b", got)
	}

	all, err := store.ListVariants(ctx, "")
	if err != nil {
		t.Fatalf("ListVariants(all) error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListVariants(all) len = %d, want 3", len(all))
	}

	if err := store.SetVariantStatus(ctx, "var-a", core.VariantActive); err != nil {
		t.Fatalf("SetVariantStatus() error = %v", err)
	}
	got, _ = store.ListVariants(ctx, "summarize")
	if got[0].Status != core.VariantActive {
		t.Fatalf("var-a status = %s, want active", got[0].Status)
	}

	if err := store.SetVariantStatus(ctx, "missing", core.VariantRetired); !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("SetVariantStatus(missing) error = %v, want ErrVariantNotFound", err)
	}
}

func TestMemoryStoreStampsVariantUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	v := core.ArtifactVariant{ID: "var-a", ToolID: "summarize", Status: core.VariantCandidate}
	if err := store.UpsertVariant(ctx, v); err != nil {
		t.Fatalf("UpsertVariant() error = %v", err)
	}
	got, err := store.ListVariants(ctx, "summarize")
	if err != nil {
		t.Fatalf("ListVariants() error = %v", err)
	}
	if got[0].UpdatedAt.IsZero() {
		t.Fatal("UpsertVariant() left UpdatedAt zero")
	}
	inserted := got[0].UpdatedAt

	kept := core.ArtifactVariant{
		ID:        "var-b",
		ToolID:    "summarize",
		Status:    core.VariantCandidate,
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.UpsertVariant(ctx, kept); err != nil {
		t.Fatalf("UpsertVariant() error = %v", err)
	}
	got, _ = store.ListVariants(ctx, "summarize")
	if !got[1].UpdatedAt.Equal(kept.UpdatedAt) {
		t.Fatalf("UpdatedAt = %v, want caller value %v preserved", got[1].UpdatedAt, kept.UpdatedAt)
	}

	if err := store.SetVariantStatus(ctx, "var-a", core.VariantRetired); err != nil {
		t.Fatalf("SetVariantStatus() error = %v", err)
	}
	got, _ = store.ListVariants(ctx, "summarize")
	if !got[0].UpdatedAt.After(inserted) {
		t.Fatalf("UpdatedAt = %v, want later than %v after status change", got[0].UpdatedAt, inserted)
	}
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey()

	rec := core.ExecutionRecord{Metrics: map[string]any{"latency_ms": 100.0}}
	if err := store.AppendExecution(ctx, key, rec); err != nil {
		t.Fatalf("AppendExecution() error = %v", err)
	}

	recs, _ := store.ListExecutions(ctx, key)
	recs[0].Metrics["latency_ms"] = 999.0

	again, _ := store.ListExecutions(ctx, key)
	if v, _ := again[0].MetricValue("latency_ms"); v != 100.0 {
		t.Fatalf("stored metric mutated through read copy: %v, want 100", v)
	}
}

package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/petal-labs/quorum/core"
	"github.com/petal-labs/quorum/registry"
)

// Recorder appends execution outcomes to the store and triggers a
// rescoring pass for the affected key.
//
// Recorder is safe for concurrent use by multiple tool-execution
// workers; the store serializes appends per key.
type Recorder struct {
	store  registry.Store
	scorer *Scorer
	events core.EventHandler
	now    func() time.Time
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderEventHandler attaches an event handler to the recorder.
func WithRecorderEventHandler(h core.EventHandler) RecorderOption {
	return func(r *Recorder) { r.events = h }
}

// WithRecorderClock overrides the recorder's time source.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder. The scorer may be nil when the caller
// only wants history accrual without rescoring.
func NewRecorder(store registry.Store, scorer *Scorer, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("consensus: recorder requires a store")
	}
	r := &Recorder{
		store:  store,
		scorer: scorer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends one execution outcome to the key's history. The append
// always succeeds, manifest or not; a key with no registered manifest
// accrues history but skips the rescoring step (reported as an orphaned
// event, never an error).
func (r *Recorder) Record(ctx context.Context, key core.ToolKey, metrics map[string]any, success bool) error {
	rec := core.ExecutionRecord{
		Timestamp: r.now(),
		Metrics:   metrics,
		Success:   success,
	}
	if err := r.store.AppendExecution(ctx, key, rec); err != nil {
		return fmt.Errorf("consensus: append execution for %s: %w", key, err)
	}

	_, registered, err := r.store.GetManifest(ctx, key)
	if err != nil {
		return fmt.Errorf("consensus: check manifest for %s: %w", key, err)
	}
	if !registered {
		r.emit(core.Event{
			Kind: core.EventExecutionOrphaned,
			Key:  key,
			Time: r.now(),
		})
		return nil
	}

	r.emit(core.Event{
		Kind: core.EventExecutionRecorded,
		Key:  key,
		Time: r.now(),
		Payload: map[string]any{
			"success": success,
		},
	})

	if r.scorer != nil {
		if _, err := r.scorer.ScoreStored(ctx, key, nil, nil); err != nil {
			return fmt.Errorf("consensus: rescore %s: %w", key, err)
		}
	}
	return nil
}

func (r *Recorder) emit(e core.Event) {
	if r.events != nil {
		r.events(e)
	}
}

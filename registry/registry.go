// Package registry defines the persistent store capability the Quorum
// decision core depends on, plus two implementations: an in-memory store
// for tests and single-process use, and a SQLite-backed store for
// durable deployments.
//
// The store is always injected explicitly into component constructors,
// never reached through a process-wide singleton, so every component is
// testable against a substitute store.
package registry

import (
	"context"
	"errors"

	"github.com/petal-labs/quorum/core"
)

// ErrManifestNotFound is returned by operations that require a
// registered manifest for the given (tool, version).
var ErrManifestNotFound = errors.New("registry: manifest not found")

// ErrVariantNotFound is returned when a variant ID has no stored entry.
var ErrVariantNotFound = errors.New("registry: variant not found")

// Store is the registry capability consumed by the decision core.
//
// Implementations must serialize execution appends per (tool, version)
// key so concurrent appends never interleave into a corrupted history,
// and must apply score writes atomically so the final persisted value
// for a key always matches one complete scoring pass.
type Store interface {
	// RegisterManifest inserts or replaces the manifest for its key.
	RegisterManifest(ctx context.Context, m core.Manifest) error

	// GetManifest returns the manifest for a key.
	GetManifest(ctx context.Context, key core.ToolKey) (core.Manifest, bool, error)

	// ListManifests returns all manifests in deterministic key order.
	ListManifests(ctx context.Context) ([]core.Manifest, error)

	// AppendExecution appends one record to the key's history, creating
	// the history if absent. A missing manifest is not an error.
	AppendExecution(ctx context.Context, key core.ToolKey, rec core.ExecutionRecord) error

	// ListExecutions returns the key's history in append order.
	ListExecutions(ctx context.Context, key core.ToolKey) ([]core.ExecutionRecord, error)

	// SetScore overwrites the latest score for its key and appends it to
	// the key's audit history. If no manifest is registered for the key
	// the write is a no-op.
	SetScore(ctx context.Context, score core.ConsensusScore) error

	// GetScore returns the latest score for a key.
	GetScore(ctx context.Context, key core.ToolKey) (core.ConsensusScore, bool, error)

	// ScoreHistory returns every score ever persisted for a key, oldest
	// first.
	ScoreHistory(ctx context.Context, key core.ToolKey) ([]core.ConsensusScore, error)

	// UpsertVariant inserts or replaces a stored variant by ID. A zero
	// UpdatedAt is stamped with the current time.
	UpsertVariant(ctx context.Context, v core.ArtifactVariant) error

	// ListVariants returns all variants for a tool in deterministic ID
	// order. An empty toolID returns every stored variant.
	ListVariants(ctx context.Context, toolID string) ([]core.ArtifactVariant, error)

	// SetVariantStatus transitions one variant's lifecycle status and
	// stamps its UpdatedAt. Returns ErrVariantNotFound for unknown IDs.
	SetVariantStatus(ctx context.Context, variantID string, status core.VariantStatus) error
}

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petal-labs/quorum/core"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS manifests (
	tool_id TEXT NOT NULL,
	version TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (tool_id, version)
);
CREATE TABLE IF NOT EXISTS executions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_id TEXT NOT NULL,
	version TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_key ON executions (tool_id, version);
CREATE TABLE IF NOT EXISTS scores (
	tool_id TEXT NOT NULL,
	version TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (tool_id, version)
);
CREATE TABLE IF NOT EXISTS score_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_id TEXT NOT NULL,
	version TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS score_history_key ON score_history (tool_id, version);
CREATE TABLE IF NOT EXISTS variants (
	id TEXT PRIMARY KEY,
	tool_id TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS variants_tool ON variants (tool_id);`

// SQLiteStoreConfig configures the SQLite-backed registry store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists the registry in SQLite. Rows carry the structured
// value as a JSON payload blob so the schema stays stable as value types
// grow fields.
//
// SQLite serializes writers, which provides the per-key append exclusion
// and atomic score writes the Store contract requires.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed registry store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("registry: sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("registry: sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: sqlite store set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RegisterManifest inserts or replaces the manifest for its key.
func (s *SQLiteStore) RegisterManifest(ctx context.Context, m core.Manifest) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("registry: sqlite encode manifest: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO manifests (tool_id, version, payload)
VALUES (?, ?, ?)
ON CONFLICT (tool_id, version) DO UPDATE SET payload = excluded.payload`,
		m.Key.ToolID, m.Key.Version, payload)
	if err != nil {
		return fmt.Errorf("registry: sqlite register manifest: %w", err)
	}
	return nil
}

// GetManifest returns the manifest for a key.
func (s *SQLiteStore) GetManifest(ctx context.Context, key core.ToolKey) (core.Manifest, bool, error) {
	if err := s.ready(ctx); err != nil {
		return core.Manifest{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT payload FROM manifests WHERE tool_id = ? AND version = ?`,
		key.ToolID, key.Version)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Manifest{}, false, nil
		}
		return core.Manifest{}, false, fmt.Errorf("registry: sqlite get manifest: %w", err)
	}
	var m core.Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return core.Manifest{}, false, fmt.Errorf("registry: sqlite decode manifest: %w", err)
	}
	return m, true, nil
}

// ListManifests returns all manifests in deterministic key order.
func (s *SQLiteStore) ListManifests(ctx context.Context) ([]core.Manifest, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM manifests ORDER BY tool_id ASC, version ASC`)
	if err != nil {
		return nil, fmt.Errorf("registry: sqlite list manifests: %w", err)
	}
	defer rows.Close()

	var out []core.Manifest
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("registry: sqlite scan manifest: %w", err)
		}
		var m core.Manifest
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("registry: sqlite decode manifest: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: sqlite manifest rows: %w", err)
	}
	return out, nil
}

// AppendExecution appends one record to the key's history.
func (s *SQLiteStore) AppendExecution(ctx context.Context, key core.ToolKey, rec core.ExecutionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: sqlite encode execution: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO executions (tool_id, version, payload) VALUES (?, ?, ?)`,
		key.ToolID, key.Version, payload)
	if err != nil {
		return fmt.Errorf("registry: sqlite append execution: %w", err)
	}
	return nil
}

// ListExecutions returns the key's history in append order.
func (s *SQLiteStore) ListExecutions(ctx context.Context, key core.ToolKey) ([]core.ExecutionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM executions
WHERE tool_id = ? AND version = ?
ORDER BY seq ASC`, key.ToolID, key.Version)
	if err != nil {
		return nil, fmt.Errorf("registry: sqlite list executions: %w", err)
	}
	defer rows.Close()

	out := make([]core.ExecutionRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("registry: sqlite scan execution: %w", err)
		}
		var rec core.ExecutionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("registry: sqlite decode execution: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: sqlite execution rows: %w", err)
	}
	return out, nil
}

// SetScore overwrites the latest score and appends to the audit history
// in one transaction. Keys without a registered manifest are dropped.
func (s *SQLiteStore) SetScore(ctx context.Context, score core.ConsensusScore) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("registry: sqlite encode score: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: sqlite begin score write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `
SELECT 1 FROM manifests WHERE tool_id = ? AND version = ?`,
		score.Key.ToolID, score.Key.Version).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: sqlite check manifest: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO scores (tool_id, version, payload)
VALUES (?, ?, ?)
ON CONFLICT (tool_id, version) DO UPDATE SET payload = excluded.payload`,
		score.Key.ToolID, score.Key.Version, payload); err != nil {
		return fmt.Errorf("registry: sqlite set score: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO score_history (tool_id, version, payload) VALUES (?, ?, ?)`,
		score.Key.ToolID, score.Key.Version, payload); err != nil {
		return fmt.Errorf("registry: sqlite append score history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: sqlite commit score write: %w", err)
	}
	return nil
}

// GetScore returns the latest score for a key.
func (s *SQLiteStore) GetScore(ctx context.Context, key core.ToolKey) (core.ConsensusScore, bool, error) {
	if err := s.ready(ctx); err != nil {
		return core.ConsensusScore{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT payload FROM scores WHERE tool_id = ? AND version = ?`,
		key.ToolID, key.Version)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ConsensusScore{}, false, nil
		}
		return core.ConsensusScore{}, false, fmt.Errorf("registry: sqlite get score: %w", err)
	}
	var sc core.ConsensusScore
	if err := json.Unmarshal(payload, &sc); err != nil {
		return core.ConsensusScore{}, false, fmt.Errorf("registry: sqlite decode score: %w", err)
	}
	return sc, true, nil
}

// ScoreHistory returns every persisted score for a key, oldest first.
func (s *SQLiteStore) ScoreHistory(ctx context.Context, key core.ToolKey) ([]core.ConsensusScore, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM score_history
WHERE tool_id = ? AND version = ?
ORDER BY seq ASC`, key.ToolID, key.Version)
	if err != nil {
		return nil, fmt.Errorf("registry: sqlite score history: %w", err)
	}
	defer rows.Close()

	out := make([]core.ConsensusScore, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("registry: sqlite scan score: %w", err)
		}
		var sc core.ConsensusScore
		if err := json.Unmarshal(payload, &sc); err != nil {
			return nil, fmt.Errorf("registry: sqlite decode score: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: sqlite score rows: %w", err)
	}
	return out, nil
}

// UpsertVariant inserts or replaces a stored variant by ID. A zero
// UpdatedAt is stamped with the current time so the write registers as
// a change.
func (s *SQLiteStore) UpsertVariant(ctx context.Context, v core.ArtifactVariant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("registry: sqlite encode variant: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO variants (id, tool_id, payload)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET tool_id = excluded.tool_id, payload = excluded.payload`,
		v.ID, v.ToolID, payload)
	if err != nil {
		return fmt.Errorf("registry: sqlite upsert variant: %w", err)
	}
	return nil
}

// ListVariants returns variants for a tool in deterministic ID order.
func (s *SQLiteStore) ListVariants(ctx context.Context, toolID string) ([]core.ArtifactVariant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	query := `SELECT payload FROM variants ORDER BY id ASC`
	args := []any{}
	if toolID != "" {
		query = `SELECT payload FROM variants WHERE tool_id = ? ORDER BY id ASC`
		args = append(args, toolID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: sqlite list variants: %w", err)
	}
	defer rows.Close()

	out := make([]core.ArtifactVariant, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("registry: sqlite scan variant: %w", err)
		}
		var v core.ArtifactVariant
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("registry: sqlite decode variant: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: sqlite variant rows: %w", err)
	}
	return out, nil
}

// SetVariantStatus transitions one variant's lifecycle status and
// stamps its UpdatedAt.
func (s *SQLiteStore) SetVariantStatus(ctx context.Context, variantID string, status core.VariantStatus) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: sqlite begin status write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var payload []byte
	err = tx.QueryRowContext(ctx, `
SELECT payload FROM variants WHERE id = ?`, variantID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVariantNotFound
	}
	if err != nil {
		return fmt.Errorf("registry: sqlite get variant: %w", err)
	}

	var v core.ArtifactVariant
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("registry: sqlite decode variant: %w", err)
	}
	v.Status = status
	v.UpdatedAt = time.Now().UTC()

	updated, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("registry: sqlite encode variant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE variants SET payload = ? WHERE id = ?`, updated, variantID); err != nil {
		return fmt.Errorf("registry: sqlite update variant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: sqlite commit status write: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("registry: sqlite store is nil")
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)

// Package daemon wires the decision core into a long-running process:
// declarative YAML configuration, a durable store, and a cron-driven
// optimizer schedule.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/quorum/cluster"
	"github.com/petal-labs/quorum/consensus"
)

const (
	projectConfigName = "quorum.yaml"
	homeConfigDir     = ".quorum"
	homeConfigName    = "config.yaml"
	defaultStoreDB    = "quorum.db"

	// defaultOptimizeSchedule runs an optimizer pass every 15 minutes.
	defaultOptimizeSchedule = "*/15 * * * *"
)

// ConfigFile is the declarative startup config shape.
type ConfigFile struct {
	Store     StoreConfig     `yaml:"store"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Otel      OtelConfig      `yaml:"otel"`
}

// StoreConfig selects and locates the registry store.
type StoreConfig struct {
	// DSN is the SQLite path. Empty means ~/.quorum/quorum.db.
	DSN string `yaml:"dsn,omitempty"`
}

// ScoringConfig overrides consensus scoring defaults. Zero-valued
// fields keep the built-in defaults.
type ScoringConfig struct {
	DefaultWeights     map[string]float64 `yaml:"default_weights,omitempty"`
	NeutralScore       *float64           `yaml:"neutral_score,omitempty"`
	LatencyCeilingMS   *float64           `yaml:"latency_ceiling_ms,omitempty"`
	CostCeilingPerCall *float64           `yaml:"cost_ceiling_per_call,omitempty"`
	LatencyCriticalMS  *float64           `yaml:"latency_critical_ms,omitempty"`
	RiskCritical       *float64           `yaml:"risk_critical,omitempty"`
	CostCritical       *float64           `yaml:"cost_critical,omitempty"`
	ConstraintBoost    *float64           `yaml:"constraint_boost,omitempty"`
}

// OptimizerConfig overrides cluster optimizer defaults.
type OptimizerConfig struct {
	SimilarityThreshold *float64                `yaml:"similarity_threshold,omitempty"`
	MaxIterations       *int                    `yaml:"max_iterations,omitempty"`
	Strategy            string                  `yaml:"strategy,omitempty"`
	FitnessWeights      *cluster.FitnessWeights `yaml:"fitness_weights,omitempty"`

	// Schedule is a UTC cron expression for periodic passes. Empty
	// disables the schedule (passes run only on demand).
	Schedule string `yaml:"schedule,omitempty"`
}

// OtelConfig configures trace export.
type OtelConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
}

// DiscoverConfigPath resolves the config location with first-match
// semantics: an explicit path, then ./quorum.yaml, then
// ~/.quorum/config.yaml.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("daemon: resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("daemon: resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverConfigPathFrom is a testable variant of DiscoverConfigPath.
func DiscoverConfigPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 3)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates,
			filepath.Join(cwd, projectConfigName),
			filepath.Join(homeDir, homeConfigDir, homeConfigName),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, fmt.Errorf("daemon: stat config %s: %w", candidate, err)
		}
		if info.IsDir() {
			continue
		}
		return candidate, true, nil
	}

	if strings.TrimSpace(explicitPath) != "" {
		return "", false, fmt.Errorf("daemon: config file not found: %s", explicitPath)
	}
	return "", false, nil
}

// LoadConfig reads and decodes a YAML config file.
func LoadConfig(path string) (ConfigFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ConfigFile{}, fmt.Errorf("daemon: read config %s: %w", path, err)
	}
	var cfg ConfigFile
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ConfigFile{}, fmt.Errorf("daemon: decode config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultStorePath returns the default SQLite path for daemon storage.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("daemon: resolve user home: %w", err)
	}
	return filepath.Join(home, homeConfigDir, defaultStoreDB), nil
}

// ScoringConfig.Apply overlays the file's scoring overrides onto the
// built-in defaults and returns the effective config.
func (c ScoringConfig) Apply(base consensus.Config) consensus.Config {
	if len(c.DefaultWeights) > 0 {
		base.DefaultWeights = c.DefaultWeights
	}
	if c.NeutralScore != nil {
		base.NeutralScore = *c.NeutralScore
	}
	if c.LatencyCeilingMS != nil {
		base.LatencyCeilingMS = *c.LatencyCeilingMS
	}
	if c.CostCeilingPerCall != nil {
		base.CostCeilingPerCall = *c.CostCeilingPerCall
	}
	if c.LatencyCriticalMS != nil {
		base.LatencyCriticalMS = *c.LatencyCriticalMS
	}
	if c.RiskCritical != nil {
		base.RiskCritical = *c.RiskCritical
	}
	if c.CostCritical != nil {
		base.CostCritical = *c.CostCritical
	}
	if c.ConstraintBoost != nil {
		base.ConstraintBoost = *c.ConstraintBoost
	}
	return base
}

// OptimizerConfig.Apply overlays the file's optimizer overrides onto
// the built-in defaults and returns the effective config.
func (c OptimizerConfig) Apply(base cluster.Config) cluster.Config {
	if c.SimilarityThreshold != nil {
		base.SimilarityThreshold = *c.SimilarityThreshold
	}
	if c.MaxIterations != nil {
		base.MaxIterations = *c.MaxIterations
	}
	if strings.TrimSpace(c.Strategy) != "" {
		base.Strategy = cluster.Strategy(c.Strategy)
	}
	if c.FitnessWeights != nil {
		base.FitnessWeights = *c.FitnessWeights
	}
	return base
}

// EffectiveSchedule returns the configured cron expression, or the
// default 15-minute schedule.
func (c OptimizerConfig) EffectiveSchedule() string {
	if clean := strings.TrimSpace(c.Schedule); clean != "" {
		return clean
	}
	return defaultOptimizeSchedule
}

package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/petal-labs/quorum/cluster"
	"github.com/petal-labs/quorum/consensus"
)

func writeTestConfig(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDiscoverConfigPathExplicitWins(t *testing.T) {
	dir := t.TempDir()
	explicit := writeTestConfig(t, dir, "custom.yaml", "store:\n  dsn: /tmp/a.db\n")
	// A project-level file also exists; the explicit path must win.
	writeTestConfig(t, dir, projectConfigName, "")

	path, found, err := DiscoverConfigPathFrom(explicit, dir, dir)
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if !found || path != explicit {
		t.Fatalf("DiscoverConfigPathFrom() = %q, %v, want %q, true", path, found, explicit)
	}
}

func TestDiscoverConfigPathExplicitMissingIsError(t *testing.T) {
	dir := t.TempDir()
	_, _, err := DiscoverConfigPathFrom(filepath.Join(dir, "absent.yaml"), dir, dir)
	if err == nil {
		t.Fatal("DiscoverConfigPathFrom() error = nil, want error for missing explicit path")
	}
}

func TestDiscoverConfigPathProjectBeforeHome(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()
	homeCfg := writeTestConfig(t, home, filepath.Join(homeConfigDir, homeConfigName), "")

	path, found, err := DiscoverConfigPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if !found || path != homeCfg {
		t.Fatalf("DiscoverConfigPathFrom() = %q, %v, want home config", path, found)
	}

	projCfg := writeTestConfig(t, cwd, projectConfigName, "")
	path, found, err = DiscoverConfigPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if !found || path != projCfg {
		t.Fatalf("DiscoverConfigPathFrom() = %q, %v, want project config first", path, found)
	}
}

func TestDiscoverConfigPathNoneFound(t *testing.T) {
	path, found, err := DiscoverConfigPathFrom("", t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if found || path != "" {
		t.Fatalf("DiscoverConfigPathFrom() = %q, %v, want not found", path, found)
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	contents := `
store:
  dsn: /var/lib/quorum/quorum.db
scoring:
  neutral_score: 0.4
  latency_critical_ms: 100
optimizer:
  similarity_threshold: 0.9
  strategy: full
  schedule: "0 * * * *"
otel:
  endpoint: localhost:4318
  service_name: quorum-test
`
	path := writeTestConfig(t, t.TempDir(), projectConfigName, contents)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.DSN != "/var/lib/quorum/quorum.db" {
		t.Fatalf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Otel.Endpoint != "localhost:4318" || cfg.Otel.ServiceName != "quorum-test" {
		t.Fatalf("Otel = %+v", cfg.Otel)
	}

	scoring := cfg.Scoring.Apply(consensus.DefaultConfig())
	if scoring.NeutralScore != 0.4 {
		t.Fatalf("NeutralScore = %v, want 0.4", scoring.NeutralScore)
	}
	if scoring.LatencyCriticalMS != 100 {
		t.Fatalf("LatencyCriticalMS = %v, want 100", scoring.LatencyCriticalMS)
	}
	// Untouched fields keep their defaults.
	if scoring.RiskCritical != consensus.DefaultConfig().RiskCritical {
		t.Fatalf("RiskCritical = %v, want default", scoring.RiskCritical)
	}

	opt := cfg.Optimizer.Apply(cluster.DefaultConfig())
	if opt.SimilarityThreshold != 0.9 {
		t.Fatalf("SimilarityThreshold = %v, want 0.9", opt.SimilarityThreshold)
	}
	if opt.Strategy != cluster.StrategyFull {
		t.Fatalf("Strategy = %q, want full", opt.Strategy)
	}
	if opt.MaxIterations != cluster.DefaultConfig().MaxIterations {
		t.Fatalf("MaxIterations = %v, want default", opt.MaxIterations)
	}
	if got := cfg.Optimizer.EffectiveSchedule(); got != "0 * * * *" {
		t.Fatalf("EffectiveSchedule() = %q", got)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), projectConfigName, "store:\n  flavor: cherry\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() error = nil, want error for unknown field")
	}
}

func TestLoadConfigToleratesEmptyFile(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), projectConfigName, "")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.DSN != "" {
		t.Fatalf("Store.DSN = %q, want empty", cfg.Store.DSN)
	}
}

func TestEffectiveScheduleDefault(t *testing.T) {
	var cfg OptimizerConfig
	if got := cfg.EffectiveSchedule(); got != defaultOptimizeSchedule {
		t.Fatalf("EffectiveSchedule() = %q, want %q", got, defaultOptimizeSchedule)
	}
}

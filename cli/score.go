package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/quorum/consensus"
	"github.com/petal-labs/quorum/core"
)

// NewScoreCmd creates the "score" subcommand.
func NewScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <tool_id>",
		Short: "Recompute the consensus score for a tool version",
		Args:  cobra.ExactArgs(1),
		RunE:  runScore,
	}
	cmd.Flags().String("store-path", "", "Path to SQLite store (default: ~/.quorum/quorum.db)")
	cmd.Flags().String("version", "", "Tool version (required)")
	cmd.Flags().Float64("latency-budget", 0, "p95 latency budget in ms (0 = unconstrained)")
	cmd.Flags().Float64("risk-tolerance", -1, "Risk tolerance in [0,1], lower is stricter (-1 = unconstrained)")
	cmd.Flags().Float64("cost-ceiling", 0, "Cost ceiling per call (0 = unconstrained)")
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	toolID := strings.TrimSpace(args[0])
	version, _ := cmd.Flags().GetString("version")
	if toolID == "" || strings.TrimSpace(version) == "" {
		return exitError(exitValidation, "tool_id and --version are required")
	}

	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	scorer, err := consensus.NewScorer(consensus.DefaultConfig(), store)
	if err != nil {
		return exitError(exitRuntime, "creating scorer: %v", err)
	}

	key := core.ToolKey{ToolID: toolID, Version: strings.TrimSpace(version)}
	score, err := scorer.ScoreStored(cmd.Context(), key, nil, resolveConstraints(cmd))
	if err != nil {
		return exitError(exitRuntime, "scoring %s: %v", key, err)
	}

	encoded, err := json.MarshalIndent(score, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding score: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

func resolveConstraints(cmd *cobra.Command) *core.OperationalConstraints {
	latencyBudget, _ := cmd.Flags().GetFloat64("latency-budget")
	riskTolerance, _ := cmd.Flags().GetFloat64("risk-tolerance")
	costCeiling, _ := cmd.Flags().GetFloat64("cost-ceiling")

	var constraints core.OperationalConstraints
	var present bool
	if latencyBudget > 0 {
		constraints.LatencyBudgetMS = &latencyBudget
		present = true
	}
	if riskTolerance >= 0 {
		constraints.RiskTolerance = &riskTolerance
		present = true
	}
	if costCeiling > 0 {
		constraints.CostCeiling = &costCeiling
		present = true
	}
	if !present {
		return nil
	}
	return &constraints
}

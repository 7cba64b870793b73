package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/quorum/consensus"
	"github.com/petal-labs/quorum/core"
)

// NewRecordCmd creates the "record" subcommand.
func NewRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <tool_id>",
		Short: "Record one tool execution outcome and rescore",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecord,
	}
	cmd.Flags().String("store-path", "", "Path to SQLite store (default: ~/.quorum/quorum.db)")
	cmd.Flags().String("version", "", "Tool version (required)")
	cmd.Flags().Bool("success", true, "Whether the execution succeeded")
	cmd.Flags().StringArray("metric", nil, "Metric NAME=VALUE (repeatable, e.g. latency_ms=120)")
	return cmd
}

func runRecord(cmd *cobra.Command, args []string) error {
	toolID := strings.TrimSpace(args[0])
	version, _ := cmd.Flags().GetString("version")
	success, _ := cmd.Flags().GetBool("success")
	rawMetrics, _ := cmd.Flags().GetStringArray("metric")

	if toolID == "" || strings.TrimSpace(version) == "" {
		return exitError(exitValidation, "tool_id and --version are required")
	}
	metrics, err := parseMetricFlags(rawMetrics)
	if err != nil {
		return exitError(exitValidation, "%s", err)
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
	recorder, err := consensus.NewRecorder(store, scorer)
	if err != nil {
		return exitError(exitRuntime, "creating recorder: %v", err)
	}

	key := core.ToolKey{ToolID: toolID, Version: strings.TrimSpace(version)}
	if err := recorder.Record(cmd.Context(), key, metrics, success); err != nil {
		return exitError(exitRuntime, "recording execution: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Recorded execution for %s (success=%t)\n", key, success)
	return nil
}

func parseMetricFlags(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	metrics := make(map[string]any, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --metric %q, want NAME=VALUE", entry)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --metric %q: value is not numeric", entry)
		}
		metrics[name] = parsed
	}
	return metrics, nil
}

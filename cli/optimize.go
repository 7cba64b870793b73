package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/quorum/cluster"
	"github.com/petal-labs/quorum/core"
)

// NewOptimizeCmd creates the "optimize" subcommand.
func NewOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run one variant deduplication pass",
		RunE:  runOptimize,
	}
	cmd.Flags().String("store-path", "", "Path to SQLite store (default: ~/.quorum/quorum.db)")
	cmd.Flags().String("strategy", string(cluster.StrategyFull), "Optimization strategy: full | incremental")
	cmd.Flags().Float64("threshold", 0.96, "Similarity threshold for clustering")
	return cmd
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	strategyValue, _ := cmd.Flags().GetString("strategy")
	threshold, _ := cmd.Flags().GetFloat64("threshold")

	strategy, err := cluster.ParseStrategy(strategyValue)
	if err != nil {
		return exitError(exitValidation, "%s", err)
	}

	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cfg := cluster.DefaultConfig()
	cfg.Strategy = strategy
	cfg.SimilarityThreshold = threshold

	optimizer, err := cluster.New(cfg, store, fingerprintSimilarity)
	if err != nil {
		return exitError(exitValidation, "configuring optimizer: %v", err)
	}

	sum, err := optimizer.Run(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "optimizer pass: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Pass %s: %d cluster(s), %d transition(s), %d iteration(s), converged=%t\n",
		sum.PassID, sum.Clusters, sum.Transitions, sum.Iterations, sum.Converged)
	return nil
}

// fingerprintSimilarity is the CLI's stand-in similarity capability:
// variants with identical content fingerprints are duplicates, anything
// else is distinct. Deployments with a real embedding provider inject
// their own SimilarityFunc through the daemon instead.
func fingerprintSimilarity(a, b core.ArtifactVariant) float64 {
	if a.Fingerprint != "" && a.Fingerprint == b.Fingerprint {
		return 1.0
	}
	return 0.0
}

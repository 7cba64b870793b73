package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/quorum/core"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage registered tool versions",
	}
	cmd.PersistentFlags().String("store-path", "", "Path to SQLite store (default: ~/.quorum/quorum.db)")

	cmd.AddCommand(newToolsRegisterCmd())
	cmd.AddCommand(newToolsListCmd())

	return cmd
}

func newToolsRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <tool_id>",
		Short: "Register a tool version in the registry",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsRegister,
	}
	cmd.Flags().String("version", "", "Tool version (required)")
	cmd.Flags().String("description", "", "Display description")
	cmd.Flags().StringArray("tag", nil, "Tag (repeatable)")
	return cmd
}

func runToolsRegister(cmd *cobra.Command, args []string) error {
	toolID := strings.TrimSpace(args[0])
	version, _ := cmd.Flags().GetString("version")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetStringArray("tag")

	if toolID == "" || strings.TrimSpace(version) == "" {
		return exitError(exitValidation, "tool_id and --version are required")
	}

	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	manifest := core.Manifest{
		Key:          core.ToolKey{ToolID: toolID, Version: strings.TrimSpace(version)},
		Description:  description,
		Tags:         tags,
		RegisteredAt: time.Now().UTC(),
	}
	if err := store.RegisterManifest(cmd.Context(), manifest); err != nil {
		return exitError(exitRuntime, "registering manifest: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", manifest.Key)
	return nil
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tool versions with their latest trust weight",
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	manifests, err := store.ListManifests(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing manifests: %v", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tVERSION\tTRUST\tSCORED AT")
	for _, m := range manifests {
		score, ok, err := store.GetScore(cmd.Context(), m.Key)
		if err != nil {
			return exitError(exitRuntime, "loading score for %s: %v", m.Key, err)
		}
		trust, scoredAt := "-", "-"
		if ok {
			trust = fmt.Sprintf("%.3f", score.Weight)
			scoredAt = score.ComputedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Key.ToolID, m.Key.Version, trust, scoredAt)
	}
	return w.Flush()
}

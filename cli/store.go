package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/quorum/bootstrap"
	"github.com/petal-labs/quorum/daemon"
	"github.com/petal-labs/quorum/registry"
)

// resolveStore opens the SQLite registry store behind the resilient
// initializer, so a transiently locked or unreachable database gets the
// bounded retry policy instead of failing the command outright.
func resolveStore(cmd *cobra.Command) (*registry.SQLiteStore, error) {
	dsn, _ := cmd.Flags().GetString("store-path")
	if strings.TrimSpace(dsn) == "" {
		var err error
		dsn, err = daemon.DefaultStorePath()
		if err != nil {
			return nil, exitError(exitRuntime, "resolving store path: %v", err)
		}
	}

	init, err := bootstrap.New(bootstrap.DefaultConfig())
	if err != nil {
		return nil, exitError(exitRuntime, "configuring store initializer: %v", err)
	}
	store, err := init.Initialize(cmd.Context(), func(context.Context) (registry.Store, error) {
		return registry.NewSQLiteStore(registry.SQLiteStoreConfig{DSN: dsn})
	})
	if err != nil {
		return nil, exitError(exitRuntime, "opening registry store: %v", err)
	}
	return store.(*registry.SQLiteStore), nil
}

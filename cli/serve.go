package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/quorum/bootstrap"
	"github.com/petal-labs/quorum/cluster"
	"github.com/petal-labs/quorum/core"
	"github.com/petal-labs/quorum/daemon"
	quorumotel "github.com/petal-labs/quorum/otel"
	"github.com/petal-labs/quorum/registry"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry daemon with scheduled variant optimization",
		RunE:  runServe,
	}
	cmd.Flags().String("config", "", "Path to quorum.yaml config")
	cmd.Flags().String("store-path", "", "Path to SQLite store (default: from config or ~/.quorum/quorum.db)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	explicitConfigPath, _ := cmd.Flags().GetString("config")
	explicitDSN, _ := cmd.Flags().GetString("store-path")

	var cfg daemon.ConfigFile
	configPath, found, err := daemon.DiscoverConfigPath(explicitConfigPath)
	if err != nil {
		return exitError(exitValidation, "%s", err)
	}
	if found {
		cfg, err = daemon.LoadConfig(configPath)
		if err != nil {
			return exitError(exitValidation, "%s", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded config from %s\n", configPath)
	}

	dsn := strings.TrimSpace(explicitDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(cfg.Store.DSN)
	}
	if dsn == "" {
		dsn, err = daemon.DefaultStorePath()
		if err != nil {
			return exitError(exitRuntime, "resolving store path: %v", err)
		}
	}

	shutdownTracing, err := quorumotel.InitTracing(cmd.Context(), quorumotel.TracingConfig{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
	})
	if err != nil {
		return exitError(exitRuntime, "initializing tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	metricsHandler, err := quorumotel.NewMetricsHandler(
		otelapi.GetMeterProvider().Meter("quorum/core"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing metrics: %v", err)
	}
	spanHandler := quorumotel.NewSpanHandler(
		otelapi.GetTracerProvider().Tracer("quorum/core"),
	)
	events := core.MultiEventHandler(metricsHandler.Handle, spanHandler.Handle)

	init, err := bootstrap.New(bootstrap.DefaultConfig(), bootstrap.WithEventHandler(events))
	if err != nil {
		return exitError(exitRuntime, "configuring store initializer: %v", err)
	}
	store, err := init.Initialize(cmd.Context(), func(context.Context) (registry.Store, error) {
		return registry.NewSQLiteStore(registry.SQLiteStoreConfig{DSN: dsn})
	})
	if err != nil {
		return exitError(exitRuntime, "initializing registry store: %v", err)
	}
	defer func() { _ = store.(*registry.SQLiteStore).Close() }()

	optimizerCfg := cfg.Optimizer.Apply(cluster.DefaultConfig())
	optimizer, err := cluster.New(optimizerCfg, store, fingerprintSimilarity,
		cluster.WithEventHandler(events),
	)
	if err != nil {
		return exitError(exitValidation, "configuring optimizer: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	scheduler, err := daemon.NewScheduler(daemon.SchedulerConfig{
		Optimizer: optimizer,
		Schedule:  cfg.Optimizer.EffectiveSchedule(),
		Logger:    logger,
	})
	if err != nil {
		return exitError(exitValidation, "%s", err)
	}

	scheduler.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "quorum daemon running (store=%s, schedule=%q)\n",
		dsn, cfg.Optimizer.EffectiveSchedule())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-cmd.Context().Done():
	case sig := <-sigCh:
		fmt.Fprintf(cmd.OutOrStdout(), "received %s, shutting down\n", sig)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		return exitError(exitRuntime, "stopping scheduler: %v", err)
	}
	return nil
}

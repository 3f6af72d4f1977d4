package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fentz26/cadence/internal/audit"
	"github.com/fentz26/cadence/internal/checkpoint"
	"github.com/fentz26/cadence/internal/confidence"
	"github.com/fentz26/cadence/internal/config"
	"github.com/fentz26/cadence/internal/connectors/localexec"
	"github.com/fentz26/cadence/internal/controlplane"
	"github.com/fentz26/cadence/internal/mcp"
	"github.com/fentz26/cadence/internal/models"
	"github.com/fentz26/cadence/internal/retention"
	"github.com/fentz26/cadence/internal/store"
	"github.com/fentz26/cadence/internal/telemetry"
)

var daemonDetach bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the cadence daemon",
	Long:  `Starts the cadence daemon which serves the JSON-RPC control API and runs scheduled cleanup.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().String("listen", "", "listen address for the API server (default 127.0.0.1:7466)")
	daemonCmd.Flags().String("db", "", "path to SQLite database (default ~/.cadence/cadence.db)")
	daemonCmd.Flags().BoolVarP(&daemonDetach, "detach", "d", false, "start the daemon in the background and wait until it is healthy")

	_ = settings.BindPFlag("listen", daemonCmd.Flags().Lookup("listen"))
	_ = settings.BindPFlag("db_path", daemonCmd.Flags().Lookup("db"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonDetach {
		return startDetached(cmd.Context())
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.Log.File, cfg.Log.Level, false)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("starting cadence daemon", "version", version, "listen", cfg.Listen, "db", cfg.DBPath)

	ctx := context.Background()
	otelCfg := cfg.Telemetry
	otelCfg.Version = version
	provider, err := telemetry.InitOTel(ctx, otelCfg)
	if err != nil {
		return err
	}
	metrics, err := telemetry.NewMetrics(provider.Meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	s, err := store.New(cfg.DBPath, store.WithLogger(logger))
	if err != nil {
		return err
	}

	checkpoints := checkpoint.NewManager(s, logger, cfg.Checkpoint.CacheExpiration)
	service := controlplane.NewService(s, localexec.New(cfg.Executor),
		controlplane.WithLogger(logger),
		controlplane.WithEvaluator(confidence.New(confidence.WithWeights(cfg.Confidence.Weights))),
		controlplane.WithCriteria(cfg.Phase),
		controlplane.WithSessionDefaults(sessionDefaults(cfg)),
		controlplane.WithAutoCheckpoint(cfg.Checkpoint.AutoOnTransition),
		controlplane.WithCheckpointManager(checkpoints),
		controlplane.WithAudit(audit.NewPDRWriter(s, logger)),
		controlplane.WithTelemetry(provider.Tracer, metrics),
		controlplane.WithSprintTimeout(cfg.Executor.Timeout),
	)

	registry, err := mcp.NewDefaultRegistry()
	if err != nil {
		return err
	}
	logger.Info("control tools registered", "count", registry.Count())
	server := controlplane.NewServer(controlplane.NewHandler(service, registry), s, cfg.Listen, version)

	policy := retention.NewPolicy(s, cfg.Retention, logger, cleanupHook(checkpoints, metrics))
	sched, err := retention.NewScheduler(policy, cfg.Retention.Schedule, logger)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("flushing telemetry")
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	logger.Info("closing database connection")
	if err := s.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func sessionDefaults(c config.Config) models.SessionMetadata {
	return models.SessionMetadata{
		ConfidenceThreshold: c.Session.ConfidenceThreshold,
		MaxSprints:          c.Session.MaxSprints,
		ParallelSwarms:      c.Session.ParallelSwarms,
	}.WithDefaults()
}

// cleanupHook drops cached checkpoints whose rows may be gone and counts
// what each scheduled run removed.
func cleanupHook(checkpoints *checkpoint.Manager, m *telemetry.Metrics) retention.Hook {
	return func(ctx context.Context, r retention.Result) {
		if r.Sessions > 0 || r.Checkpoints > 0 {
			checkpoints.Flush()
		}
		for kind, n := range map[string]int64{
			"sessions":    r.Sessions,
			"checkpoints": r.Checkpoints,
			"audit":       r.AuditRows,
		} {
			if n > 0 {
				m.CleanupDeleted.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
			}
		}
	}
}

// startDetached re-executes "cadence daemon" as a background process and
// waits for its health endpoint.
func startDetached(ctx context.Context) error {
	client := controlplane.NewClient(cfg.API)
	if _, err := client.Health(ctx); err == nil {
		fmt.Printf("Daemon already running at %s\n", cfg.API)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"daemon"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	proc := daemonCommand(exe, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Waiting for daemon...")
	for i := 0; i < 20; i++ {
		if _, err := client.Health(ctx); err == nil {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started (pid %d) but API not reachable at %s", proc.Process.Pid, cfg.API)
}

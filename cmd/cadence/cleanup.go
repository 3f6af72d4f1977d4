package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/cadence/internal/retention"
	"github.com/fentz26/cadence/internal/telemetry"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete aged sessions, checkpoints and audit rows now",
	Long: `Runs one retention pass against the database. The daemon runs the same
pass on retention.schedule; this command is for one-off use.`,
	RunE: runCleanup,
}

var (
	cleanupMaxAge time.Duration
	cleanupVacuum bool
)

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 0, "age after which terminal sessions are deleted (default from config)")
	cleanupCmd.Flags().BoolVar(&cleanupVacuum, "vacuum", false, "compact the database afterwards")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	rc := cfg.Retention
	if cleanupMaxAge > 0 {
		rc.MaxAge = cleanupMaxAge
	}
	if cleanupVacuum {
		rc.Vacuum = true
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	logger, closer, err := telemetry.NewLogger(cfg.Log.File, cfg.Log.Level, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := retention.NewPolicy(s, rc, logger).Run(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	if !res.Deleted() {
		fmt.Println("Nothing to clean up")
		return nil
	}
	fmt.Printf("Deleted %d sessions, %d checkpoints, %d audit rows in %s\n",
		res.Sessions, res.Checkpoints, res.AuditRows, res.Duration.Round(time.Millisecond))
	return nil
}

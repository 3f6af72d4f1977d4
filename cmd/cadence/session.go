package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/cadence/internal/controlplane"
)

var initCmd = &cobra.Command{
	Use:   "init <task>",
	Short: "Start a new session for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show session status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var sprintCmd = &cobra.Command{
	Use:   "sprint <session-id>",
	Short: "Run the next sprint of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSprint,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel an active session",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <session-id>",
	Short: "Show aggregated sprint metrics for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetrics,
}

var (
	initThreshold  float64
	initMaxSprints int
	initSwarms     int
	statusVerbose  bool
	sprintGoal     string
	sprintUntil    bool
	metricsRes     bool
)

func init() {
	initCmd.Flags().Float64Var(&initThreshold, "threshold", 0, "confidence threshold in (0, 1] (default from config)")
	initCmd.Flags().IntVar(&initMaxSprints, "max-sprints", 0, "maximum number of sprints (default from config)")
	initCmd.Flags().IntVar(&initSwarms, "swarms", 0, "parallel agent swarms per sprint (default from config)")

	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "include every sprint")

	sprintCmd.Flags().StringVar(&sprintGoal, "objective", "", "sprint objective (default: the session task)")
	sprintCmd.Flags().BoolVar(&sprintUntil, "until-done", false, "keep running sprints while the session should continue")

	metricsCmd.Flags().BoolVar(&metricsRes, "resources", false, "include agent and memory usage")
}

func runInit(cmd *cobra.Command, args []string) error {
	call := controlplane.InitCall{Task: args[0]}
	if cmd.Flags().Changed("threshold") {
		call.ConfidenceThreshold = &initThreshold
	}
	if cmd.Flags().Changed("max-sprints") {
		call.MaxSprints = &initMaxSprints
	}
	if cmd.Flags().Changed("swarms") {
		call.ParallelSwarms = &initSwarms
	}

	res, err := newClient().Init(cmd.Context(), call)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("Started session: %s\n", res.SessionID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	res, err := newClient().Status(cmd.Context(), controlplane.StatusCall{SessionID: args[0], Verbose: statusVerbose})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}

	s := res.Session
	field("ID", s.ID)
	field("Task", s.TaskID)
	field("Status", renderSessionStatus(s.Status))
	field("Phase", s.Phase)
	field("Sprints", fmt.Sprintf("%d / %d", s.SprintCount, s.MaxSprints))
	field("Confidence", renderConfidence(s.ConfidenceLevel))
	field("Threshold", fmt.Sprintf("%.2f", s.ConfidenceThreshold))
	field("Started", s.StartedAt.Format("2006-01-02 15:04:05"))
	field("Updated", s.UpdatedAt.Format("2006-01-02 15:04:05"))
	if s.CompletedAt != nil {
		field("Completed", s.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	if len(res.Sprints) > 0 {
		fmt.Println()
		w := newTable()
		fmt.Fprintln(w, "#\tID\tSTATUS\tCONFIDENCE\tOBJECTIVE")
		for _, sp := range res.Sprints {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\n",
				sp.SprintNumber, truncateID(sp.ID), sp.Status, sp.Confidence, truncate(sp.Objective, 40))
		}
		w.Flush()
	}
	return nil
}

func runSprint(cmd *cobra.Command, args []string) error {
	client := newClient()
	for {
		res, err := client.Sprint(cmd.Context(), controlplane.SprintCall{SessionID: args[0], Objective: sprintGoal})
		if err != nil {
			return err
		}
		if jsonOut {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			printSprint(res)
		}
		if !sprintUntil || !res.ShouldContinue {
			return nil
		}
	}
}

func printSprint(res *controlplane.SprintResult) {
	fmt.Printf("%s %d (%s): %s, confidence %s\n",
		labelStyle.Render("Sprint"), res.SprintNumber, truncateID(res.SprintID), res.Status, renderConfidence(res.Confidence))

	d := res.Decision
	switch {
	case d.Advance:
		fmt.Printf("  phase %s -> %s\n", d.From, successStyle.Render(string(d.To)))
	case d.Complete:
		fmt.Printf("  phase %s complete, %s\n", d.From, successStyle.Render("session finished"))
	case d.Stalled:
		fmt.Printf("  %s\n", warnStyle.Render(d.Reason))
	default:
		fmt.Printf("  phase %s: %s\n", res.Phase, subtleStyle.Render(d.Reason))
	}
	if res.CheckpointID != "" {
		fmt.Printf("  checkpoint %s\n", res.CheckpointID)
	}
	if res.ShouldContinue {
		fmt.Println(subtleStyle.Render("  another sprint is recommended"))
	}
}

func runCancel(cmd *cobra.Command, args []string) error {
	res, err := newClient().Cancel(cmd.Context(), controlplane.CancelCall{SessionID: args[0]})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("Cancelled session %s\n", res.SessionID)
	return nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	res, err := newClient().Metrics(cmd.Context(), controlplane.MetricsCall{SessionID: args[0], IncludeResources: metricsRes})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}

	field("Session", res.SessionID)
	field("Sprints", fmt.Sprintf("%d (%d completed, %d failed)", res.TotalSprints, res.CompletedSprints, res.FailedSprints))
	field("Average", renderConfidence(res.AverageConfidence))
	field("Best", renderConfidence(res.MaxConfidence))
	field("Duration", fmt.Sprintf("%dms", res.TotalDurationMs))
	field("Tokens", res.TotalTokens)
	field("Errors", res.TotalErrors)
	if res.Score != nil {
		field("Score", renderConfidence(res.Score.Value))
	}
	if r := res.Resources; r != nil {
		field("Agents", fmt.Sprintf("%d total, %d peak", r.TotalAgents, r.PeakAgents))
		field("Memory", fmt.Sprintf("%d bytes total, %d peak", r.TotalMemoryBytes, r.PeakMemoryBytes))
	}
	return nil
}

func newClient() *controlplane.Client {
	return controlplane.NewClient(cfg.API)
}

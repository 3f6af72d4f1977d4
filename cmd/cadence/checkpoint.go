package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fentz26/cadence/internal/controlplane"
	"github.com/fentz26/cadence/internal/models"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <session-id> <name>",
	Short: "Snapshot a session at its latest sprint",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckpoint,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Show the state captured by a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var listCmd = &cobra.Command{
	Use:   "list [sessions|checkpoints]",
	Short: "List sessions or the checkpoints of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var (
	checkpointDesc string
	listSession    string
	listStatus     string
)

func init() {
	checkpointCmd.Flags().StringVar(&checkpointDesc, "desc", "", "checkpoint description")

	listCmd.Flags().StringVar(&listSession, "session", "", "session whose checkpoints to list")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter sessions by status (active, completed, failed, cancelled)")
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	res, err := newClient().Checkpoint(cmd.Context(), controlplane.CheckpointCall{
		SessionID:   args[0],
		Name:        args[1],
		Description: checkpointDesc,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("Created checkpoint: %s\n", res.CheckpointID)
	fmt.Printf("Sprint:             %s\n", res.SprintID)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	res, err := newClient().Restore(cmd.Context(), controlplane.RestoreCall{CheckpointID: args[0]})
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}

	st := res.State
	field("Checkpoint", fmt.Sprintf("%s (%s)", res.Name, res.CheckpointID))
	field("Session", res.SessionID)
	field("Status", renderSessionStatus(st.Session.Status))
	field("Phase", st.Session.Metadata.Phase)
	field("Confidence", renderConfidence(st.Session.ConfidenceLevel))
	field("Sprints", len(st.Sprints))
	field("Artifacts", len(st.Artifacts))

	if len(st.Memory) > 0 {
		fmt.Println()
		w := newTable()
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, k := range sortedKeys(st.Memory) {
			fmt.Fprintf(w, "%s\t%s\n", k, truncate(st.Memory[k], 60))
		}
		w.Flush()
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	call := controlplane.ListCall{
		Type:      controlplane.ListSessions,
		SessionID: listSession,
		Status:    models.SessionStatus(listStatus),
	}
	if len(args) == 1 {
		call.Type = controlplane.ListType(strings.ToLower(args[0]))
	}

	res, err := newClient().List(cmd.Context(), call)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}

	if res.Type == controlplane.ListCheckpoints {
		if len(res.Checkpoints) == 0 {
			fmt.Println("No checkpoints found")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tSPRINT\tCREATED")
		for _, c := range res.Checkpoints {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, truncate(c.Name, 30), truncateID(c.SprintID), c.CreatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
		return nil
	}

	if len(res.Sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tTASK\tSTATUS\tPHASE\tSPRINTS\tCONFIDENCE")
	for _, s := range res.Sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%.2f\n",
			s.ID, truncate(s.TaskID, 30), s.Status, s.Phase, s.SprintCount, s.MaxSprints, s.ConfidenceLevel)
	}
	w.Flush()
	return nil
}

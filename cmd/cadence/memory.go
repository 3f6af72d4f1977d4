package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fentz26/cadence/internal/store"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage the external memory of a session",
	Long: `Memory entries are key/value pairs stored next to a session. Checkpoints
capture them and restore returns them.`,
}

var memorySetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a memory entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemorySet,
}

var memoryGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a memory entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryGet,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory entries",
	RunE:  runMemoryList,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a memory entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memSession string

func init() {
	memoryCmd.AddCommand(memorySetCmd, memoryGetCmd, memoryListCmd, memoryDeleteCmd)
	memoryCmd.PersistentFlags().StringVarP(&memSession, "session", "s", "", "session ID (required)")
	memoryCmd.MarkPersistentFlagRequired("session")
}

// openStore opens the database directly. Memory and cleanup do not go
// through the daemon.
func openStore() (*store.Store, error) {
	return store.New(cfg.DBPath)
}

func runMemorySet(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.GetSession(cmd.Context(), memSession); err != nil {
		return err
	}
	entry, err := s.SetMemory(cmd.Context(), memSession, args[0], args[1])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entry)
	}
	fmt.Printf("Set %s\n", entry.Key)
	return nil
}

func runMemoryGet(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	value, err := s.GetMemory(cmd.Context(), memSession, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no memory entry %q in session %s", args[0], memSession)
	}
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	mem, err := s.Memory(cmd.Context(), memSession)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(mem)
	}
	if len(mem) == 0 {
		fmt.Println("No memory entries found")
		return nil
	}

	w := newTable()
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, k := range sortedKeys(mem) {
		fmt.Fprintf(w, "%s\t%s\n", k, truncate(mem[k], 60))
	}
	w.Flush()
	return nil
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteMemory(cmd.Context(), memSession, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

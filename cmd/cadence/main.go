package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fentz26/cadence/internal/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - confidence-driven sprint sessions",
	Long: `Cadence runs a task as a session of sprints. Each sprint is scored for
confidence, the session moves through planning, executing, testing and
refactoring phases, and checkpoints capture its state along the way.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// These must work even when the config file is broken.
		skipCommands := map[string]bool{
			"cadence config init": true,
			"cadence version":     true,
			"cadence help":        true,
		}
		if skipCommands[cmd.CommandPath()] {
			return nil
		}
		return initConfig()
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	cfgFile  string
	jsonOut  bool
	cfg      config.Config
	settings = viper.New()
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: .cadence/config.yaml or ~/.config/cadence/config.yaml)")
	flags.String("api", "", "API server address (default http://127.0.0.1:7466)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&jsonOut, "json", false, "print results as JSON")

	_ = settings.BindPFlag("api", flags.Lookup("api"))
	_ = settings.BindPFlag("log.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd, statusCmd, sprintCmd, cancelCmd, metricsCmd)
	rootCmd.AddCommand(checkpointCmd, restoreCmd, listCmd)
	rootCmd.AddCommand(memoryCmd, cleanupCmd, toolsCmd, configCmd, versionCmd)
}

func initConfig() error {
	loaded, err := config.Load(settings, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cadence version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cadence", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

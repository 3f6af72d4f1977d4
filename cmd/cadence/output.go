package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/cadence/internal/confidence"
	"github.com/fentz26/cadence/internal/models"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	levelStyles = map[confidence.Level]lipgloss.Style{
		confidence.LevelCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		confidence.LevelHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		confidence.LevelMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		confidence.LevelLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		confidence.LevelMinimal:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// renderConfidence prints a value with its level, colored by level.
func renderConfidence(v float64) string {
	level := confidence.LevelFor(v)
	return levelStyles[level].Render(fmt.Sprintf("%.2f %s", v, level))
}

func renderSessionStatus(s models.SessionStatus) string {
	switch s {
	case models.SessionStatusActive:
		return warnStyle.Render(string(s))
	case models.SessionStatusCompleted:
		return successStyle.Render(string(s))
	case models.SessionStatusFailed:
		return errorStyle.Render(string(s))
	default:
		return subtleStyle.Render(string(s))
	}
}

// field prints one aligned "Label: value" line.
func field(label string, value any) {
	fmt.Printf("%s %v\n", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), value)
}

// printJSON writes v as indented JSON. It backs the --json flag.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// --- Helpers ---

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

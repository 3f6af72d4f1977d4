// Package localexec runs the execution engine as a local process, restricted
// to an allowlist of commands.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fentz26/cadence/internal/connectors"
)

// DefaultTimeout applies when neither the config nor the job sets one.
const DefaultTimeout = 10 * time.Minute

// Config defines the engine command.
type Config struct {
	Command string        `mapstructure:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	WorkDir string        `mapstructure:"workdir" yaml:"workdir"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Allowed []string      `mapstructure:"allowed" yaml:"allowed"`
}

// DefaultConfig echoes the task back, which is enough to exercise the loop.
func DefaultConfig() Config {
	return Config{
		Command: "echo",
		Timeout: DefaultTimeout,
		Allowed: []string{"echo"},
	}
}

// LocalExec implements connectors.Executor by running Config.Command with the
// job's task as its final argument.
type LocalExec struct {
	cfg Config
}

// New creates a LocalExec.
func New(cfg Config) *LocalExec {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LocalExec{cfg: cfg}
}

// Name returns the executor identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed reports whether cmd is on the allowlist. The base name is
// compared, so /usr/bin/echo matches echo.
func (l *LocalExec) IsAllowed(cmd string) bool {
	if cmd == "" {
		return false
	}
	base := filepath.Base(cmd)
	for _, a := range l.cfg.Allowed {
		if a == cmd || a == base {
			return true
		}
	}
	return false
}

// Execute runs the engine. A non-zero exit code is a failed Outcome, not an
// error; errors mean the process could not be started.
func (l *LocalExec) Execute(ctx context.Context, job connectors.Job) (*connectors.Outcome, error) {
	if !l.IsAllowed(l.cfg.Command) {
		return nil, fmt.Errorf("command not allowed: %s", l.cfg.Command)
	}

	timeout := l.cfg.Timeout
	if job.Limits.Timeout > 0 && job.Limits.Timeout < timeout {
		timeout = job.Limits.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), l.cfg.Args...), job.Task)
	cmd := exec.CommandContext(ctx, l.cfg.Command, args...)
	if l.cfg.WorkDir != "" {
		cmd.Dir = l.cfg.WorkDir
	}
	cmd.Env = append(os.Environ(), jobEnv(job)...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			exitCode = -1
		default:
			return nil, fmt.Errorf("exec error: %w", err)
		}
	}

	outcome := &connectors.Outcome{
		Success:  exitCode == 0,
		Output:   out.String(),
		ExitCode: exitCode,
		Duration: duration,
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome.Success = false
		outcome.Output += fmt.Sprintf("\nexecution timed out after %s", timeout)
		outcome.Errors = 1
	} else if exitCode != 0 {
		outcome.Errors = 1
	}
	return outcome, nil
}

func jobEnv(job connectors.Job) []string {
	env := []string{
		"CADENCE_OBJECTIVE=" + job.Objective,
		"CADENCE_SESSION_ID=" + job.Limits.SessionID,
		"CADENCE_SPRINT_NUMBER=" + strconv.Itoa(job.Limits.SprintNumber),
	}
	if job.Limits.MaxTokens > 0 {
		env = append(env, "CADENCE_MAX_TOKENS="+strconv.FormatInt(job.Limits.MaxTokens, 10))
	}
	if job.Limits.MaxAgents > 0 {
		env = append(env, "CADENCE_MAX_AGENTS="+strconv.Itoa(job.Limits.MaxAgents))
	}
	if job.Limits.MaxMemoryMB > 0 {
		env = append(env, "CADENCE_MAX_MEMORY_MB="+strconv.FormatInt(job.Limits.MaxMemoryMB, 10))
	}
	return env
}

//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// daemonCommand builds the background daemon process. It runs in a new
// session with no controlling terminal, so closing the launching shell does
// not signal it.
func daemonCommand(exe string, args ...string) *exec.Cmd {
	proc := exec.Command(exe, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return proc
}

//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// daemonCommand builds the background daemon process in its own process
// group without a console, so Ctrl+C in the launching console skips it.
func daemonCommand(exe string, args ...string) *exec.Cmd {
	proc := exec.Command(exe, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
	return proc
}

// DETACHED_PROCESS from the Win32 process creation flags.
const detachedProcess = 0x00000008

//go:build windows

package main

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcessGroup sets up the command for Windows. There is no direct
// equivalent of Unix process groups; HideWindow avoids spawning console
// windows for every dotnet invocation.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
	}
}

// terminateProcessGroup has no SIGTERM equivalent on Windows; callers fall
// back to Process.Kill on the returned error.
func terminateProcessGroup(pid int) error {
	return fmt.Errorf("windows termination requires process.Kill()")
}

// forceKillProcessGroup has no SIGKILL equivalent on Windows; callers fall
// back to Process.Kill on the returned error.
func forceKillProcessGroup(pid int) error {
	return fmt.Errorf("windows force kill requires process.Kill()")
}

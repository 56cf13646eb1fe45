//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the command in its own process group so the
// whole tree (dotnet, MSBuild nodes, file watchers) can be signalled at
// once.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// signalProcessGroup delivers sig to every process in pid's group.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// terminateProcessGroup asks a process group to exit (SIGTERM).
func terminateProcessGroup(pid int) error {
	return signalProcessGroup(pid, syscall.SIGTERM)
}

// forceKillProcessGroup kills a process group outright (SIGKILL).
func forceKillProcessGroup(pid int) error {
	return signalProcessGroup(pid, syscall.SIGKILL)
}

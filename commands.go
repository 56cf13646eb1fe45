package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Operation kinds, used as lock diagnostics and session metadata. They are
// labels for humans; the lock conflict key is the target alone.
const (
	OpBuild         = "build"
	OpTest          = "test"
	OpPublish       = "publish"
	OpRestore       = "restore"
	OpClean         = "clean"
	OpAddPackage    = "add-package"
	OpRemovePackage = "remove-package"
	OpRun           = "run"
	OpWatch         = "watch"
)

// commandEnv returns the inherited environment plus the variables that keep
// dotnet output machine-readable: no ANSI colors, no first-run banner, no
// telemetry handshake delaying the first invocation.
func commandEnv() []string {
	env := os.Environ()
	return append(env,
		"NO_COLOR=1",
		"TERM=dumb",
		"DOTNET_NOLOGO=1",
		"DOTNET_CLI_TELEMETRY_OPTOUT=1",
	)
}

// newDotnetCommand builds a dotnet invocation bound to ctx. Cancelling ctx
// kills the entire process tree, not just the immediate process; MSBuild
// worker nodes would otherwise linger.
func newDotnetCommand(ctx context.Context, cfg Config, workingDir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, cfg.DotnetPath, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = commandEnv()
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killCommandTree(cmd)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// newSessionCommand builds a dotnet invocation for a background session. It
// is deliberately not bound to the request context: the session outlives
// the tool call and is killed through the session registry instead.
func newSessionCommand(cfg Config, workingDir string, args ...string) *exec.Cmd {
	cmd := exec.Command(cfg.DotnetPath, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = commandEnv()
	configureProcessGroup(cmd)
	return cmd
}

// killCommandTree force-kills the process group of a started command,
// falling back to killing the immediate process where group signalling is
// unavailable.
func killCommandTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := forceKillProcessGroup(cmd.Process.Pid); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// Argument assembly per operation. The MCP layer validates presence; these
// only translate validated inputs into CLI argument vectors.

func argsForBuild(project, configuration string) []string {
	args := []string{"build", project}
	if configuration != "" {
		args = append(args, "--configuration", configuration)
	}
	return args
}

func argsForTest(project, filter string) []string {
	args := []string{"test", project}
	if filter != "" {
		args = append(args, "--filter", filter)
	}
	return args
}

func argsForPublish(project, configuration, output string) []string {
	args := []string{"publish", project}
	if configuration != "" {
		args = append(args, "--configuration", configuration)
	}
	if output != "" {
		args = append(args, "--output", output)
	}
	return args
}

func argsForRestore(project string) []string {
	return []string{"restore", project}
}

func argsForClean(project string) []string {
	return []string{"clean", project}
}

func argsForAddPackage(project, pkg, version string) []string {
	args := []string{"add", project, "package", pkg}
	if version != "" {
		args = append(args, "--version", version)
	}
	return args
}

func argsForRemovePackage(project, pkg string) []string {
	return []string{"remove", project, "package", pkg}
}

func argsForRun(project string, appArgs []string) []string {
	args := []string{"run", "--project", project}
	if len(appArgs) > 0 {
		args = append(args, "--")
		args = append(args, appArgs...)
	}
	return args
}

func argsForWatch(project string) []string {
	return []string{"watch", "--project", project, "--non-interactive"}
}

func argsForListTemplates() []string {
	return []string{"new", "list"}
}

func argsForSdkInfo() []string {
	return []string{"--info"}
}

// describeCommand renders an invocation for logs and results.
func describeCommand(cfg Config, args []string) string {
	return fmt.Sprintf("%s %s", cfg.DotnetPath, strings.Join(args, " "))
}

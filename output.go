package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// CommandResult is the response body for short-lived operations.
type CommandResult struct {
	Operation  string           `json:"operation"`
	Target     string           `json:"target"`
	Command    string           `json:"command"`
	Success    bool             `json:"success"`
	ExitCode   int              `json:"exit_code"`
	DurationMs int64            `json:"duration_ms"`
	Stdout     string           `json:"stdout,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
	Hints      []DiagnosticHint `json:"hints,omitempty"`
}

// runToCompletion executes a short-lived dotnet operation under ctx and
// formats the outcome. A non-zero exit is a normal result, not a Go error;
// only failing to start the process at all is.
func runToCompletion(ctx context.Context, cfg Config, kind, target, workingDir string, args []string) (*CommandResult, error) {
	timeout := time.Duration(cfg.CommandTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := newDotnetCommand(ctx, cfg, workingDir, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &CommandResult{
		Operation:  kind,
		Target:     target,
		Command:    describeCommand(cfg, args),
		DurationMs: elapsed.Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The process never ran (binary missing, ctx already dead).
			return nil, fmt.Errorf("start %s: %w", result.Command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.Success = result.ExitCode == 0

	result.Stdout = tailString(stdout.String(), cfg.OutputTailLines)
	result.Stderr = tailString(stderr.String(), cfg.OutputTailLines)
	if !result.Success {
		result.Hints = extractDiagnosticHints(stdout.String() + "\n" + stderr.String())
	}
	return result, nil
}

// tailString keeps the last maxLines lines of s. Build failures report at
// the end of the output, so the tail is the part worth echoing back.
func tailString(s string, maxLines int) string {
	if s == "" || maxLines <= 0 {
		return s
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= maxLines {
		return s
	}
	kept := lines[len(lines)-maxLines:]
	return fmt.Sprintf("[... %d lines omitted ...]\n%s\n", len(lines)-maxLines, strings.Join(kept, "\n"))
}

// toolJSON marshals v into a text tool result.
func toolJSON(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// conflictResult formats a denied lock acquisition: which operation holds
// the target and since when, so the caller can decide whether to retry.
func conflictResult(requested string, holder *LockHolder) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(
		"Cannot start %s: a %s operation is already in progress for %s (since %s)",
		requested, holder.Kind, holder.Target, holder.AcquiredAt.Format(time.RFC3339)))
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// The dispatcher: one handler per tool. Mutating operations take the
// target's exclusive lock before spawning and release it on every exit
// path; long-running operations hold the lock for the session's lifetime
// and release it from the watcher goroutine when the process dies.

// clientOwnerFromContext identifies the MCP client session issuing the
// request, or "" in stdio mode. Sessions record it so a disconnecting SSE
// client's processes can be cleaned up.
func clientOwnerFromContext(ctx context.Context) string {
	if globalSSEServer == nil {
		return "" // stdio mode: one local client, no per-client cleanup
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

// optionalString reads a non-required string argument.
func optionalString(request mcp.CallToolRequest, key string) string {
	if arguments, ok := request.Params.Arguments.(map[string]any); ok {
		if value, ok := arguments[key].(string); ok {
			return value
		}
	}
	return ""
}

// optionalInt reads a non-required numeric argument (JSON numbers arrive as
// float64).
func optionalInt(request mcp.CallToolRequest, key string) int {
	if arguments, ok := request.Params.Arguments.(map[string]any); ok {
		if value, ok := arguments[key].(float64); ok {
			return int(value)
		}
	}
	return 0
}

// optionalStringSlice reads a non-required string array argument.
func optionalStringSlice(request mcp.CallToolRequest, key string) []string {
	var values []string
	if arguments, ok := request.Params.Arguments.(map[string]any); ok {
		if list, ok := arguments[key].([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
		}
	}
	return values
}

// runLockedTool is the short-lived mutating path: acquire, run to
// completion, release. The deferred release also covers cancellation; the
// command's context kills the process tree and Run returns.
func runLockedTool(ctx context.Context, kind, target string, args []string) (*mcp.CallToolResult, error) {
	granted, holder := locks.TryAcquire(kind, target)
	if !granted {
		return conflictResult(kind, holder), nil
	}
	defer locks.Release(kind, target)

	result, err := runToCompletion(ctx, config.Get(), kind, target, "", args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(result), nil
}

// startSessionTool is the long-running path: acquire, spawn, register a
// session, return immediately. The lock is released when the session's
// process exits, whether it finishes on its own, is stopped via
// stop_session, or is killed by owner cleanup.
func startSessionTool(ctx context.Context, kind, target string, args []string) (*mcp.CallToolResult, error) {
	granted, holder := locks.TryAcquire(kind, target)
	if !granted {
		return conflictResult(kind, holder), nil
	}

	cfg := config.Get()
	cmd := newSessionCommand(cfg, "", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		locks.Release(kind, target)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create stdout pipe: %v", err)), nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		locks.Release(kind, target)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create stderr pipe: %v", err)), nil
	}

	if err := cmd.Start(); err != nil {
		locks.Release(kind, target)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start %s: %v", describeCommand(cfg, args), err)), nil
	}

	sessionID := uuid.New().String()
	sess, err := sessions.Register(sessionID, cmd, stdout, stderr, kind, target, clientOwnerFromContext(ctx))
	if err != nil || sess == nil {
		killCommandTree(cmd)
		locks.Release(kind, target)
		if err == nil {
			err = fmt.Errorf("session id collision: %s", sessionID)
		}
		LogError("Dispatch", "Failed to register session", err.Error())
		return mcp.NewToolResultError(fmt.Sprintf("Failed to register session: %v", err)), nil
	}

	// The watcher holds the session handle itself; the registry entry may be
	// removed (cleanup, owner disconnect) before the process dies.
	go func() {
		<-sess.Done()
		locks.Release(kind, target)
		LogInfo("Dispatch", "Lock released on session exit",
			fmt.Sprintf("Session: %s, Kind: %s, Target: %s", sessionID, kind, target))
	}()

	LogInfo("Dispatch", "Background session started",
		fmt.Sprintf("Session: %s, Command: %s", sessionID, describeCommand(cfg, args)))

	return toolJSON(map[string]any{
		"session_id": sessionID,
		"pid":        cmd.Process.Pid,
		"kind":       kind,
		"target":     normalizeTarget(target),
		"command":    describeCommand(cfg, args),
		"status":     "running",
	}), nil
}

// Short-lived mutating tools

func handleBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	configuration := optionalString(request, "configuration")
	return runLockedTool(ctx, OpBuild, project, argsForBuild(project, configuration))
}

func handleTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	filter := optionalString(request, "filter")
	return runLockedTool(ctx, OpTest, project, argsForTest(project, filter))
}

func handlePublish(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	configuration := optionalString(request, "configuration")
	output := optionalString(request, "output")
	return runLockedTool(ctx, OpPublish, project, argsForPublish(project, configuration, output))
}

func handleRestore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	return runLockedTool(ctx, OpRestore, project, argsForRestore(project))
}

func handleClean(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	return runLockedTool(ctx, OpClean, project, argsForClean(project))
}

func handleAddPackage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	pkg, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'package' argument"), nil
	}
	version := optionalString(request, "version")
	return runLockedTool(ctx, OpAddPackage, project, argsForAddPackage(project, pkg, version))
}

func handleRemovePackage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	pkg, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'package' argument"), nil
	}
	return runLockedTool(ctx, OpRemovePackage, project, argsForRemovePackage(project, pkg))
}

// Long-running tools

func handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	appArgs := optionalStringSlice(request, "args")
	return startSessionTool(ctx, OpRun, project, argsForRun(project, appArgs))
}

func handleWatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'project_path' argument"), nil
	}
	return startSessionTool(ctx, OpWatch, project, argsForWatch(project))
}

// Session management tools

func handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := sessions.ActiveSessions()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return toolJSON(map[string]any{
		"count":    len(infos),
		"sessions": infos,
	}), nil
}

func handleGetSessionLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'session_id' argument"), nil
	}

	tailLines := optionalInt(request, "tail_lines")

	var since time.Time
	if raw := optionalString(request, "since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid 'since' timestamp (want RFC3339): %v", err)), nil
		}
	}

	logs, found := sessions.Logs(sessionID, tailLines, since)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("Session %s not found", sessionID)), nil
	}
	return toolJSON(logs), nil
}

func handleStopSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'session_id' argument"), nil
	}

	stopped, err := sessions.TryStop(sessionID)
	if !stopped {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(map[string]any{
		"session_id": sessionID,
		"status":     "stopped",
	}), nil
}

func handleCleanupSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed := sessions.CleanupCompleted()
	return toolJSON(map[string]any{
		"removed":   removed,
		"remaining": sessions.ActiveSessionCount(),
	}), nil
}

// Read-only metadata tools (no lock; TTL-cached)

func fetchMetadata(ctx context.Context, args []string) func() (string, error) {
	return func() (string, error) {
		cfg := config.Get()
		timeout := time.Duration(cfg.CommandTimeoutSeconds) * time.Second
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := newDotnetCommand(ctx, cfg, "", args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s: %v: %s", describeCommand(cfg, args), err, tailString(stderr.String(), 20))
		}
		return stdout.String(), nil
	}
}

func handleListTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, cached, err := metadata.Get("templates", fetchMetadata(ctx, argsForListTemplates()))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list templates: %v", err)), nil
	}
	return toolJSON(map[string]any{
		"cached": cached,
		"output": output,
	}), nil
}

func handleSdkInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, cached, err := metadata.Get("sdk-info", fetchMetadata(ctx, argsForSdkInfo()))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query SDK info: %v", err)), nil
	}
	return toolJSON(map[string]any{
		"cached": cached,
		"output": output,
	}), nil
}

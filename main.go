package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version can be set at build time using -ldflags "-X main.version=x.x.x"
var version = "dev"

// Global SSE server reference, nil in stdio mode
var globalSSEServer *server.SSEServer

// Shutdown channel for coordinated shutdown
var shutdownChan = make(chan struct{})
var shutdownOnce sync.Once

// TUI state tracking for mutual exclusivity with console logging
var (
	isTUIActive bool
	tuiMutex    sync.RWMutex
)

func setTUIActive(active bool) {
	tuiMutex.Lock()
	defer tuiMutex.Unlock()
	isTUIActive = active
}

func isTUIActiveCheck() bool {
	tuiMutex.RLock()
	defer tuiMutex.RUnlock()
	return isTUIActive
}

func main() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	sseMode := flag.Bool("sse", true, "Run in SSE mode instead of stdio (default: true)")
	tuiMode := flag.Bool("tui", true, "Enable TUI mode (default: true, only available with --sse)")
	port := flag.String("port", "5080", "Port for SSE server")
	host := flag.String("host", "localhost", "Host for SSE server")
	configPath := flag.String("config", "", "Path to JSONC config file (optional)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("dotnet-mcp %s\n", version)
		os.Exit(0)
	}

	if *tuiMode && !*sseMode {
		fmt.Println("Error: TUI mode (--tui) is only available with SSE mode (--sse)")
		os.Exit(1)
	}

	// Load config and keep it fresh while the server runs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *configPath != "" {
		cfg, err := LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v\n", err)
		}
		config.Set(cfg)
		if err := watchConfig(ctx, *configPath); err != nil {
			LogWarn("Config", "Hot reload unavailable", err.Error())
		}
	} else {
		config.Set(DefaultConfig())
	}

	// 🛠️ Create hooks for client session lifecycle management
	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		handleClientDisconnected(session.SessionID())
	})

	// 🛠️ Create a new MCP server
	s := server.NewMCPServer(
		"dotnet-mcp",
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
	)

	registerTools(s)

	// 🚦 Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if *sseMode {
		sseConfig := SSEServerConfig{
			Host: *host,
			Port: *port,
		}

		var tuiApp *TUIApp
		if *tuiMode {
			tuiApp = NewTUIApp()
			go func() {
				// Small delay so the SSE server comes up before the TUI
				// takes over the terminal.
				time.Sleep(200 * time.Millisecond)
				setTUIActive(true)
				if err := tuiApp.Run(); err != nil {
					setTUIActive(false)
					log.Printf("TUI error: %v", err)
				}
				setTUIActive(false)
				LogInfo("TUI", "TUI exited, shutting down dotnet-mcp...")
				shutdownOnce.Do(func() {
					close(shutdownChan)
				})
			}()
		}

		go func() {
			select {
			case <-sigChan:
				shutdownOnce.Do(func() {
					close(shutdownChan)
				})
				if tuiApp != nil {
					tuiApp.Stop()
				}
				// Force exit after timeout to prevent hanging
				go func() {
					time.Sleep(5 * time.Second)
					log.Printf("Force exit after shutdown timeout")
					os.Exit(1)
				}()
			case <-shutdownChan:
				return
			}
		}()

		if err := StartSSEServer(s, sseConfig); err != nil {
			log.Fatalf("Failed to start SSE server: %v\n", err)
		}

		shutdownAllSessions()
		os.Exit(0)
	} else {
		go func() {
			<-sigChan
			shutdownAllSessions()
			os.Exit(0)
		}()

		if err := server.ServeStdio(s); err != nil {
			fmt.Printf("Server error: %v\n", err)
		}
		shutdownAllSessions()
	}
}

// registerTools defines and registers every MCP tool the gateway exposes.
func registerTools(s *server.MCPServer) {
	// 🔧 Short-lived mutating operations (exclusive per target)
	buildTool := mcp.NewTool(
		"dotnet_build",
		mcp.WithDescription("Build a .NET project or solution. Exclusive per target: fails immediately if another operation is in progress for the same path"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project, solution or directory to build"),
		),
		mcp.WithString("configuration",
			mcp.Description("Build configuration (e.g., Debug, Release)"),
		),
	)

	testTool := mcp.NewTool(
		"dotnet_test",
		mcp.WithDescription("Run tests for a .NET project or solution"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project, solution or directory to test"),
		),
		mcp.WithString("filter",
			mcp.Description("Test filter expression (--filter)"),
		),
	)

	publishTool := mcp.NewTool(
		"dotnet_publish",
		mcp.WithDescription("Publish a .NET project"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project to publish"),
		),
		mcp.WithString("configuration",
			mcp.Description("Build configuration (e.g., Debug, Release)"),
		),
		mcp.WithString("output",
			mcp.Description("Output directory for published artifacts"),
		),
	)

	restoreTool := mcp.NewTool(
		"dotnet_restore",
		mcp.WithDescription("Restore NuGet packages for a project or solution"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project, solution or directory to restore"),
		),
	)

	cleanTool := mcp.NewTool(
		"dotnet_clean",
		mcp.WithDescription("Clean build outputs of a project or solution"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project, solution or directory to clean"),
		),
	)

	addPackageTool := mcp.NewTool(
		"dotnet_add_package",
		mcp.WithDescription("Add a NuGet package reference to a project"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project file"),
		),
		mcp.WithString("package",
			mcp.Required(),
			mcp.Description("NuGet package id"),
		),
		mcp.WithString("version",
			mcp.Description("Package version (optional, latest stable if omitted)"),
		),
	)

	removePackageTool := mcp.NewTool(
		"dotnet_remove_package",
		mcp.WithDescription("Remove a NuGet package reference from a project"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project file"),
		),
		mcp.WithString("package",
			mcp.Required(),
			mcp.Description("NuGet package id"),
		),
	)

	// 🔧 Long-running operations (become background sessions)
	runTool := mcp.NewTool(
		"dotnet_run",
		mcp.WithDescription("Run a .NET project as a background session. Returns a session id immediately; use get_session_logs to follow output and stop_session to terminate"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project to run"),
		),
		mcp.WithArray("args",
			mcp.Description("Arguments passed to the application after --"),
		),
	)

	watchTool := mcp.NewTool(
		"dotnet_watch",
		mcp.WithDescription("Run 'dotnet watch' for a project as a background session (rebuilds and restarts on file changes)"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Path to the project to watch"),
		),
	)

	// 🔧 Session management
	listSessionsTool := mcp.NewTool(
		"list_sessions",
		mcp.WithDescription("List all tracked background sessions, running or exited"),
	)

	getSessionLogsTool := mcp.NewTool(
		"get_session_logs",
		mcp.WithDescription("Get captured stdout/stderr lines of a background session, optionally filtered by time and tail-limited"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier returned by dotnet_run/dotnet_watch"),
		),
		mcp.WithNumber("tail_lines",
			mcp.Description("Maximum combined number of lines across both streams, most recent first (optional)"),
		),
		mcp.WithString("since",
			mcp.Description("Only return lines captured at or after this RFC3339 timestamp (optional)"),
		),
	)

	stopSessionTool := mcp.NewTool(
		"stop_session",
		mcp.WithDescription("Force-terminate a background session's whole process tree"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)

	cleanupSessionsTool := mcp.NewTool(
		"cleanup_sessions",
		mcp.WithDescription("Remove all sessions whose process has exited; running sessions are untouched"),
	)

	// 🔧 Read-only SDK metadata (TTL-cached)
	listTemplatesTool := mcp.NewTool(
		"dotnet_list_templates",
		mcp.WithDescription("List installed 'dotnet new' templates (cached)"),
	)

	sdkInfoTool := mcp.NewTool(
		"dotnet_sdk_info",
		mcp.WithDescription("Show installed SDK and runtime information (cached)"),
	)

	// 🔗 Register everything
	s.AddTool(buildTool, handleBuild)
	s.AddTool(testTool, handleTest)
	s.AddTool(publishTool, handlePublish)
	s.AddTool(restoreTool, handleRestore)
	s.AddTool(cleanTool, handleClean)
	s.AddTool(addPackageTool, handleAddPackage)
	s.AddTool(removePackageTool, handleRemovePackage)
	s.AddTool(runTool, handleRun)
	s.AddTool(watchTool, handleWatch)
	s.AddTool(listSessionsTool, handleListSessions)
	s.AddTool(getSessionLogsTool, handleGetSessionLogs)
	s.AddTool(stopSessionTool, handleStopSession)
	s.AddTool(cleanupSessionsTool, handleCleanupSessions)
	s.AddTool(listTemplatesTool, handleListTemplates)
	s.AddTool(sdkInfoTool, handleSdkInfo)
}

// shutdownAllSessions asks every running session's process group to exit,
// waits up to 5 seconds, then force-kills the stragglers.
func shutdownAllSessions() {
	infos := sessions.ActiveSessions()

	for _, info := range infos {
		if info.Running && info.PID > 0 {
			if err := terminateProcessGroup(info.PID); err != nil {
				// Platform without group termination; the force-kill pass
				// below goes through Process.Kill.
				continue
			}
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stillRunning := false
		for _, info := range infos {
			if current, ok := sessions.TryGet(info.ID); ok && current.Running {
				stillRunning = true
				break
			}
		}
		if !stillRunning {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, info := range infos {
		if current, ok := sessions.TryGet(info.ID); ok && current.Running {
			sessions.TryStop(info.ID)
		}
	}
}

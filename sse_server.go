package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// SSEServerConfig holds configuration for the SSE server
type SSEServerConfig struct {
	Host string
	Port string
}

// StartSSEServer starts the MCP server in SSE mode and blocks until
// shutdown is initiated.
func StartSSEServer(mcpServer *server.MCPServer, config SSEServerConfig) error {
	log.Printf("Starting dotnet-mcp in SSE mode on %s:%s\n", config.Host, config.Port)

	sseServer := server.NewSSEServer(mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", config.Host, config.Port)),
		server.WithStaticBasePath("/mcp"),
		server.WithKeepAlive(true),
	)
	globalSSEServer = sseServer

	addr := fmt.Sprintf("%s:%s", config.Host, config.Port)
	log.Printf("SSE endpoint: http://%s/mcp/sse\n", addr)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: sseServer,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("SSE server error: %w", err)
	case <-shutdownChan:
		log.Println("Shutting down SSE server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := sseServer.Shutdown(ctx); err != nil {
			log.Printf("SSE server shutdown error: %v\n", err)
		}
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v\n", err)
		}
		return nil
	}
}

// handleClientDisconnected is called when an MCP client session goes away.
// Sessions the client started would otherwise keep running with nobody left
// to stop them, so they are killed here. Locks release themselves through
// the per-session watcher once the processes die.
func handleClientDisconnected(clientID string) {
	if clientID == "" {
		return
	}

	killed := sessions.StopByOwner(clientID)
	if killed > 0 {
		LogInfo("SSE", "Cleaned up sessions for disconnected client",
			fmt.Sprintf("Client: %s, Killed: %d", clientID, killed))
	} else {
		LogInfo("SSE", "Client disconnected, no sessions to clean up", fmt.Sprintf("Client: %s", clientID))
	}
}

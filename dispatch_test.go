package main

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func requestWithArguments(args map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func TestOptionalArgumentHelpers(t *testing.T) {
	request := requestWithArguments(map[string]any{
		"configuration": "Release",
		"tail_lines":    float64(25),
		"args":          []any{"--port", "8080", 42},
	})

	if got := optionalString(request, "configuration"); got != "Release" {
		t.Errorf("optionalString = %q", got)
	}
	if got := optionalString(request, "missing"); got != "" {
		t.Errorf("optionalString for missing key = %q, want empty", got)
	}
	if got := optionalInt(request, "tail_lines"); got != 25 {
		t.Errorf("optionalInt = %d", got)
	}
	if got := optionalInt(request, "missing"); got != 0 {
		t.Errorf("optionalInt for missing key = %d, want 0", got)
	}

	values := optionalStringSlice(request, "args")
	if len(values) != 2 || values[0] != "--port" || values[1] != "8080" {
		t.Errorf("optionalStringSlice = %v, non-string items should be skipped", values)
	}
}

func TestRunLockedToolReportsConflict(t *testing.T) {
	locks.Clear()
	defer locks.Clear()

	granted, _ := locks.TryAcquire(OpBuild, "/tmp/held-project")
	if !granted {
		t.Fatal("setup acquire should succeed")
	}

	result, err := runLockedTool(context.Background(), OpAddPackage, "/tmp/held-project", argsForRestore("/tmp/held-project"))
	if err != nil {
		t.Fatalf("runLockedTool: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("a held target should produce a conflict error result")
	}

	// The denial must not have clobbered the original lock.
	if granted, holder := locks.TryAcquire(OpTest, "/tmp/held-project"); granted {
		t.Error("lock should still be held after a denied operation")
	} else if holder.Kind != OpBuild {
		t.Errorf("holder kind = %q, want original %q", holder.Kind, OpBuild)
	}
}

func TestStopSessionToolNotFoundMessage(t *testing.T) {
	request := requestWithArguments(map[string]any{"session_id": "no-such-session"})

	result, err := handleStopSession(context.Background(), request)
	if err != nil {
		t.Fatalf("handleStopSession: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("stopping an unknown session should produce an error result")
	}
}

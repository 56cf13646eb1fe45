package main

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	// Keep registry log chatter out of test output.
	SetConsoleLogging(false)
	os.Exit(m.Run())
}

// startShell spawns a shell script the way the dispatcher spawns dotnet:
// own process group, both pipes attached before Start.
func startShell(t *testing.T, script string) (*exec.Cmd, io.ReadCloser, io.ReadCloser) {
	t.Helper()

	cmd := exec.Command("sh", "-c", script)
	configureProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.Fatalf("stderr pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start %q: %v", script, err)
	}

	t.Cleanup(func() {
		killCommandTree(cmd)
	})
	return cmd, stdout, stderr
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRegisterRejectsInvalidArguments(t *testing.T) {
	reg := NewSessionRegistry()

	if _, err := reg.Register("", nil, nil, nil, OpRun, "/tmp/p", ""); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("empty id: got %v, want ErrEmptySessionID", err)
	}
	if _, err := reg.Register("s1", nil, nil, nil, OpRun, "/tmp/p", ""); !errors.Is(err, ErrNilProcess) {
		t.Errorf("nil cmd: got %v, want ErrNilProcess", err)
	}

	// A command that was never started has no process either.
	unstarted := exec.Command("sh", "-c", "true")
	if _, err := reg.Register("s1", unstarted, nil, nil, OpRun, "/tmp/p", ""); !errors.Is(err, ErrNilProcess) {
		t.Errorf("unstarted cmd: got %v, want ErrNilProcess", err)
	}
}

func TestRegisterDuplicateIDKeepsFirst(t *testing.T) {
	reg := NewSessionRegistry()

	cmd1, out1, err1 := startShell(t, "sleep 5")
	cmd2, out2, err2 := startShell(t, "sleep 5")

	sess, err := reg.Register("dup", cmd1, out1, err1, OpRun, "/tmp/first", "")
	if err != nil || sess == nil {
		t.Fatalf("first register: sess=%v err=%v", sess, err)
	}
	dup, err := reg.Register("dup", cmd2, out2, err2, OpWatch, "/tmp/second", "")
	if err != nil {
		t.Fatalf("duplicate register returned error: %v", err)
	}
	if dup != nil {
		t.Fatal("duplicate register should return a nil session")
	}

	info, found := reg.TryGet("dup")
	if !found {
		t.Fatal("session should exist")
	}
	if info.PID != cmd1.Process.Pid {
		t.Errorf("session pid = %d, want first process %d", info.PID, cmd1.Process.Pid)
	}
	if info.Kind != OpRun || info.Target != "/tmp/first" {
		t.Errorf("session metadata %+v should reflect the first registration", info)
	}

	reg.TryStop("dup")
	killCommandTree(cmd2)
}

func TestCleanupCompletedRemovesOnlyExited(t *testing.T) {
	reg := NewSessionRegistry()

	shortCmd, shortOut, shortErr := startShell(t, "true")
	longCmd, longOut, longErr := startShell(t, "sleep 10")

	if sess, err := reg.Register("short", shortCmd, shortOut, shortErr, OpRun, "/tmp/s", ""); sess == nil || err != nil {
		t.Fatalf("register short: sess=%v err=%v", sess, err)
	}
	if sess, err := reg.Register("long", longCmd, longOut, longErr, OpRun, "/tmp/l", ""); sess == nil || err != nil {
		t.Fatalf("register long: sess=%v err=%v", sess, err)
	}

	waitFor(t, 5*time.Second, "short session to exit", func() bool {
		info, ok := reg.TryGet("short")
		return ok && !info.Running
	})

	removed := reg.CleanupCompleted()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, found := reg.TryGet("short"); found {
		t.Error("exited session should be gone after cleanup")
	}
	if _, found := reg.TryGet("long"); !found {
		t.Error("running session should survive cleanup")
	}
	if reg.ActiveSessionCount() != 1 {
		t.Errorf("count = %d, want 1", reg.ActiveSessionCount())
	}

	reg.TryStop("long")
}

func TestStopSessionKillsProcessTree(t *testing.T) {
	reg := NewSessionRegistry()

	// The child sleep must die with the shell, or it lingers as an orphan.
	cmd, out, errPipe := startShell(t, "sleep 30")
	if sess, err := reg.Register("victim", cmd, out, errPipe, OpRun, "/tmp/v", ""); sess == nil || err != nil {
		t.Fatalf("register: sess=%v err=%v", sess, err)
	}

	stopped, err := reg.TryStop("victim")
	if err != nil || !stopped {
		t.Fatalf("TryStop: stopped=%v err=%v", stopped, err)
	}

	waitFor(t, 5*time.Second, "victim to be reaped", func() bool {
		info, ok := reg.TryGet("victim")
		return ok && !info.Running
	})

	// Stopping an already-exited session is still success.
	stopped, err = reg.TryStop("victim")
	if err != nil || !stopped {
		t.Errorf("second TryStop: stopped=%v err=%v, want success", stopped, err)
	}
}

func TestStopUnknownSessionNotFound(t *testing.T) {
	reg := NewSessionRegistry()

	stopped, err := reg.TryStop("never-registered")
	if stopped {
		t.Fatal("stopping an unknown session should not report success")
	}
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want message containing %q", err, "not found")
	}
}

func TestSessionLogsSinceFilter(t *testing.T) {
	reg := NewSessionRegistry()

	cmd, out, errPipe := startShell(t, `echo first; sleep 0.4; echo second; sleep 10`)
	if sess, err := reg.Register("since", cmd, out, errPipe, OpRun, "/tmp/p", ""); sess == nil || err != nil {
		t.Fatalf("register: sess=%v err=%v", sess, err)
	}

	waitFor(t, 5*time.Second, "both lines to be captured", func() bool {
		logs, ok := reg.Logs("since", 0, time.Time{})
		return ok && len(logs.OutputLines) >= 2
	})

	logs, _ := reg.Logs("since", 0, time.Time{})
	ts1 := logs.OutputLines[0].Timestamp
	ts2 := logs.OutputLines[1].Timestamp
	cutoff := ts1.Add(ts2.Sub(ts1) / 2)

	filtered, ok := reg.Logs("since", 0, cutoff)
	if !ok {
		t.Fatal("session should exist")
	}
	for _, line := range append(filtered.OutputLines, filtered.ErrorLines...) {
		if line.Timestamp.Before(cutoff) {
			t.Errorf("line %q predates the since cutoff", line.Text)
		}
	}
	if len(filtered.OutputLines) != 1 || filtered.OutputLines[0].Text != "second" {
		t.Errorf("filtered output = %+v, want only %q", filtered.OutputLines, "second")
	}

	reg.TryStop("since")
}

func TestSessionLogsTailLimitIsCombined(t *testing.T) {
	reg := NewSessionRegistry()

	cmd, out, errPipe := startShell(t, `echo o1; echo o2; echo o3; echo e1 >&2; echo e2 >&2; sleep 10`)
	if sess, err := reg.Register("tail", cmd, out, errPipe, OpRun, "/tmp/p", ""); sess == nil || err != nil {
		t.Fatalf("register: sess=%v err=%v", sess, err)
	}

	waitFor(t, 5*time.Second, "all five lines to be captured", func() bool {
		logs, ok := reg.Logs("tail", 0, time.Time{})
		return ok && len(logs.OutputLines)+len(logs.ErrorLines) >= 5
	})

	logs, _ := reg.Logs("tail", 2, time.Time{})
	total := len(logs.OutputLines) + len(logs.ErrorLines)
	if total > 2 {
		t.Errorf("combined tail = %d lines, want <= 2", total)
	}
	if total != 2 {
		t.Errorf("combined tail = %d lines, want exactly 2 with 5 captured", total)
	}

	reg.TryStop("tail")
}

func TestSessionLogsUnknownSession(t *testing.T) {
	reg := NewSessionRegistry()

	if logs, found := reg.Logs("ghost", 0, time.Time{}); found || logs != nil {
		t.Errorf("unknown session should return (nil, false), got (%v, %v)", logs, found)
	}
}

func TestSessionEndToEndBothStreams(t *testing.T) {
	reg := NewSessionRegistry()

	script := `for i in 1 2 3 4 5; do echo "out $i"; echo "err $i" >&2; sleep 0.1; done; sleep 10`
	cmd, out, errPipe := startShell(t, script)
	if sess, err := reg.Register("e2e", cmd, out, errPipe, OpRun, "/tmp/app", ""); sess == nil || err != nil {
		t.Fatalf("register: sess=%v err=%v", sess, err)
	}

	time.Sleep(1 * time.Second)

	logs, found := reg.Logs("e2e", 0, time.Time{})
	if !found {
		t.Fatal("session should exist")
	}
	if len(logs.OutputLines) == 0 {
		t.Error("stdout lines should be non-empty")
	}
	if len(logs.ErrorLines) == 0 {
		t.Error("stderr lines should be non-empty")
	}
	if !logs.Running {
		t.Error("session should still be running (process is sleeping)")
	}

	// Per-stream order is preserved.
	for i := 1; i < len(logs.OutputLines); i++ {
		if logs.OutputLines[i].Timestamp.Before(logs.OutputLines[i-1].Timestamp) {
			t.Error("stdout timestamps went backwards")
		}
	}

	reg.TryStop("e2e")
}

func TestStopByOwnerKillsOnlyThatClient(t *testing.T) {
	reg := NewSessionRegistry()

	for i, owner := range []string{"client-a", "client-a", "client-b"} {
		cmd, out, errPipe := startShell(t, "sleep 10")
		id := string(rune('x' + i))
		if sess, err := reg.Register(id, cmd, out, errPipe, OpRun, "/tmp/"+id, owner); sess == nil || err != nil {
			t.Fatalf("register %s: sess=%v err=%v", id, sess, err)
		}
	}

	if killed := reg.StopByOwner("client-a"); killed != 2 {
		t.Errorf("killed = %d, want 2", killed)
	}
	if reg.ActiveSessionCount() != 1 {
		t.Errorf("remaining = %d, want 1", reg.ActiveSessionCount())
	}
	if killed := reg.StopByOwner(""); killed != 0 {
		t.Errorf("empty owner killed %d sessions, want 0", killed)
	}

	reg.StopByOwner("client-b")
}

func TestSessionIDReusableAfterRemoval(t *testing.T) {
	reg := NewSessionRegistry()

	cmd1, out1, err1 := startShell(t, "true")
	if sess, err := reg.Register("reused", cmd1, out1, err1, OpRun, "/tmp/p", ""); sess == nil || err != nil {
		t.Fatalf("first register: sess=%v err=%v", sess, err)
	}

	waitFor(t, 5*time.Second, "first session to exit", func() bool {
		info, ok := reg.TryGet("reused")
		return ok && !info.Running
	})
	if removed := reg.CleanupCompleted(); removed != 1 {
		t.Fatalf("cleanup removed %d, want 1", removed)
	}

	// Ids are unique among registered sessions, not across history.
	cmd2, out2, err2 := startShell(t, "sleep 10")
	if sess, err := reg.Register("reused", cmd2, out2, err2, OpWatch, "/tmp/q", ""); sess == nil || err != nil {
		t.Fatalf("re-register after removal: sess=%v err=%v", sess, err)
	}

	reg.TryStop("reused")
}

func TestSessionHandleOutlivesRegistryEntry(t *testing.T) {
	reg := NewSessionRegistry()

	cmd, out, errPipe := startShell(t, "true")
	sess, err := reg.Register("fleeting", cmd, out, errPipe, OpRun, "/tmp/f", "")
	if err != nil || sess == nil {
		t.Fatalf("register: sess=%v err=%v", sess, err)
	}

	waitFor(t, 5*time.Second, "process to exit", func() bool {
		return !sess.Running()
	})
	if removed := reg.CleanupCompleted(); removed != 1 {
		t.Fatalf("cleanup removed %d, want 1", removed)
	}
	if _, found := reg.TryGet("fleeting"); found {
		t.Fatal("registry entry should be gone")
	}

	// Exit waiters hold the handle from Register, so removal of the
	// registry entry must not invalidate it.
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done should be closed for an exited session")
	}
	if info := sess.Info(); info.ExitCode == nil || *info.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", info.ExitCode)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	reg := NewSessionRegistry()

	cmd, out, errPipe := startShell(t, "sleep 10")
	if sess, err := reg.Register("c1", cmd, out, errPipe, OpRun, "/tmp/c", ""); sess == nil || err != nil {
		t.Fatalf("register: sess=%v err=%v", sess, err)
	}

	reg.Clear()
	if reg.ActiveSessionCount() != 0 {
		t.Errorf("count after Clear = %d, want 0", reg.ActiveSessionCount())
	}
	// Clear does not kill; the t.Cleanup from startShell reaps the process.
}

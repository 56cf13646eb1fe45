package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// ErrNilProcess is returned by Register when the command has no started
// process attached. This is a caller bug, not a runtime condition.
var ErrNilProcess = errors.New("session process must not be nil")

// ErrEmptySessionID is returned by Register when the session id is empty.
var ErrEmptySessionID = errors.New("session id must not be empty")

// SessionInfo is the queryable metadata of a registered session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Owner     string    `json:"owner,omitempty"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Running   bool      `json:"running"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

// SessionLogs is the result of a log query: the session's captured lines
// split back into the two streams, each in capture order.
type SessionLogs struct {
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	Running     bool      `json:"running"`
	OutputLines []LogLine `json:"output_lines"`
	ErrorLines  []LogLine `json:"error_lines"`
}

// ProcessSession owns one spawned process: the session is the only component
// that signals termination, so two code paths can never race to kill the
// same process. The log buffer is shared between the capture goroutines
// (append) and query callers (read).
type ProcessSession struct {
	ID        string
	Kind      string
	Target    string
	Owner     string
	StartedAt time.Time

	cmd  *exec.Cmd
	logs *LogBuffer

	mu       sync.RWMutex
	exitCode *int
	done     chan struct{}
	captured sync.WaitGroup
}

// newProcessSession wraps an already-started command. The wait goroutine is
// started by the registry once the session is safely registered.
func newProcessSession(id, kind, target, owner string, cmd *exec.Cmd, maxLogLines int) *ProcessSession {
	return &ProcessSession{
		ID:        id,
		Kind:      kind,
		Target:    target,
		Owner:     owner,
		StartedAt: time.Now(),
		cmd:       cmd,
		logs:      NewLogBuffer(maxLogLines),
		done:      make(chan struct{}),
	}
}

// wait reaps the process once both stream readers have drained their pipes.
// Waiting before the readers finish would tear the pipes down under them.
func (s *ProcessSession) wait() {
	s.captured.Wait()
	err := s.cmd.Wait()

	s.mu.Lock()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	s.exitCode = &code
	s.mu.Unlock()

	close(s.done)
}

// Running reports whether the process has not yet been reaped. It is
// computed on demand, never stored.
func (s *ProcessSession) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the process has exited and been reaped.
func (s *ProcessSession) Done() <-chan struct{} {
	return s.done
}

// Info returns a point-in-time metadata snapshot.
func (s *ProcessSession) Info() SessionInfo {
	s.mu.RLock()
	exitCode := s.exitCode
	s.mu.RUnlock()

	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}

	return SessionInfo{
		ID:        s.ID,
		Kind:      s.Kind,
		Target:    s.Target,
		Owner:     s.Owner,
		PID:       pid,
		StartedAt: s.StartedAt,
		Running:   s.Running(),
		ExitCode:  exitCode,
	}
}

// kill force-terminates the whole process tree rooted at the session's
// process. Children must die too, or a file watcher spawned by the target
// keeps running as an orphan. Kill failures are tolerated: the process may
// already be reaped, and the caller must not be left stuck.
func (s *ProcessSession) kill() {
	if !s.Running() {
		return
	}
	if s.cmd.Process == nil {
		return
	}

	if err := forceKillProcessGroup(s.cmd.Process.Pid); err != nil {
		// Group signalling unavailable or the group already gone.
		_ = s.cmd.Process.Kill()
	}

	// Wait briefly for the OS to confirm, but never for the process's own
	// shutdown logic; the kill above was forceful.
	select {
	case <-s.done:
	case <-time.After(3 * time.Second):
	}
}

// SessionRegistry tracks zero or more concurrently running external
// processes and keeps their captured output queryable after the spawning
// request has returned.
type SessionRegistry struct {
	mu          sync.RWMutex
	sessions    map[string]*ProcessSession
	maxLogLines int
}

// NewSessionRegistry creates an empty session registry with the default
// per-session log retention.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*ProcessSession),
		maxLogLines: DefaultMaxLogLines,
	}
}

// Global session registry instance used by the tool handlers
var sessions = NewSessionRegistry()

// SetMaxLogLines sets the retained-line cap applied to sessions registered
// from now on.
func (r *SessionRegistry) SetMaxLogLines(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.maxLogLines = n
	}
}

// Register stores a session for an already-started command and begins
// capturing its output. It returns an error for an empty id or a nil/
// unstarted command (programmer errors) and a nil session without
// registering when a session with that id already exists (duplicates never
// overwrite). The returned session is the caller's handle; it stays valid
// after the registry entry is removed, so exit waiters never need a second
// lookup by id.
func (r *SessionRegistry) Register(id string, cmd *exec.Cmd, stdout, stderr io.ReadCloser, kind, target, owner string) (*ProcessSession, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	if cmd == nil || cmd.Process == nil {
		return nil, ErrNilProcess
	}

	sess := newProcessSession(id, kind, target, owner, cmd, r.currentMaxLogLines())

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, nil
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	if stdout != nil {
		sess.captured.Add(1)
		go func() {
			defer sess.captured.Done()
			captureStream(stdout, StreamStdout, sess.logs)
		}()
	}
	if stderr != nil {
		sess.captured.Add(1)
		go func() {
			defer sess.captured.Done()
			captureStream(stderr, StreamStderr, sess.logs)
		}()
	}
	go sess.wait()

	LogInfo("Sessions", "Session registered",
		fmt.Sprintf("ID: %s, Kind: %s, Target: %s, PID: %d", id, kind, target, cmd.Process.Pid))
	return sess, nil
}

func (r *SessionRegistry) currentMaxLogLines() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxLogLines
}

// get looks up a session without side effects.
func (r *SessionRegistry) get(id string) (*ProcessSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, exists := r.sessions[id]
	return sess, exists
}

// TryGet returns the metadata of a registered session.
func (r *SessionRegistry) TryGet(id string) (SessionInfo, bool) {
	sess, exists := r.get(id)
	if !exists {
		return SessionInfo{}, false
	}
	return sess.Info(), true
}

// TryStop force-kills the process tree of a registered session. Stopping an
// already-exited session still reports success. The session stays
// registered (its logs remain queryable) until CleanupCompleted or Clear
// removes it.
func (r *SessionRegistry) TryStop(id string) (bool, error) {
	sess, exists := r.get(id)
	if !exists {
		return false, fmt.Errorf("session %s not found", id)
	}

	sess.kill()
	LogInfo("Sessions", "Session stopped", fmt.Sprintf("ID: %s", id))
	return true, nil
}

// ActiveSessions returns the metadata of every currently registered session,
// running or not; "active" means tracked, not alive. Callers that need only
// live processes filter on Running themselves.
func (r *SessionRegistry) ActiveSessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}

// ActiveSessionCount returns the number of currently registered sessions.
func (r *SessionRegistry) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CleanupCompleted removes every session whose process has already exited
// and returns the number removed. Still-running sessions are untouched.
func (r *SessionRegistry) CleanupCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if !sess.Running() {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		LogInfo("Sessions", "Completed sessions removed", fmt.Sprintf("Count: %d", removed))
	}
	return removed
}

// StopByOwner kills and removes every session registered by the given
// owner. Used when an SSE client disconnects so its processes do not leak.
func (r *SessionRegistry) StopByOwner(owner string) int {
	if owner == "" {
		return 0
	}

	r.mu.Lock()
	var owned []*ProcessSession
	for id, sess := range r.sessions {
		if sess.Owner == owner {
			owned = append(owned, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range owned {
		sess.kill()
	}
	return len(owned)
}

// Clear forcibly removes all sessions regardless of running state. It does
// not guarantee child processes are killed; callers needing guaranteed
// termination stop each session first.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*ProcessSession)
}

// Logs returns the captured output of a session, or false if the id is
// unknown. The since filter applies first; the tail limit then caps the
// combined line count across both streams, keeping the most recent lines by
// timestamp. Running is computed fresh at call time.
func (r *SessionRegistry) Logs(id string, tailLines int, since time.Time) (*SessionLogs, bool) {
	sess, exists := r.get(id)
	if !exists {
		return nil, false
	}

	lines := sess.logs.SnapshotSince(since)

	// The buffer is globally timestamp-ordered, so the most-recent-first
	// selection across both streams is just the last tailLines entries.
	if tailLines > 0 && len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}

	result := &SessionLogs{
		SessionID:   sess.ID,
		Kind:        sess.Kind,
		Running:     sess.Running(),
		OutputLines: make([]LogLine, 0, len(lines)),
		ErrorLines:  make([]LogLine, 0),
	}
	for _, line := range lines {
		if line.Stream == StreamStderr {
			result.ErrorLines = append(result.ErrorLines, line)
		} else {
			result.OutputLines = append(result.OutputLines, line)
		}
	}
	return result, true
}

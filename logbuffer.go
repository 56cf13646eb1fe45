package main

import (
	"bufio"
	"io"
	"sync"
	"time"
)

// LogStream identifies which output stream a captured line came from.
type LogStream string

const (
	StreamStdout LogStream = "stdout"
	StreamStderr LogStream = "stderr"
)

// LogLine is a single captured output line with its capture timestamp.
type LogLine struct {
	Stream    LogStream `json:"stream"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// DefaultMaxLogLines is the per-session retained-line cap. Old lines are
	// dropped from the front once exceeded, which keeps memory bounded while
	// staying generous enough for since-filtered polling.
	DefaultMaxLogLines = 20000

	// maxLineBytes bounds a single captured line; longer lines are split by
	// the scanner rather than aborting capture.
	maxLineBytes = 1024 * 1024
)

// LogBuffer holds the captured output of one session. Both stream readers
// append into the same buffer so that lines are globally ordered: the
// timestamp is taken while holding the mutex, so buffer order and timestamp
// order are the same thing. Reads copy, so callers never observe a torn
// line or a slice that a concurrent append is growing.
type LogBuffer struct {
	mu       sync.RWMutex
	lines    []LogLine
	maxLines int
	dropped  int64
}

// NewLogBuffer creates a buffer retaining at most maxLines lines. A
// non-positive maxLines falls back to DefaultMaxLogLines.
func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLogLines
	}
	return &LogBuffer{
		lines:    make([]LogLine, 0, 64),
		maxLines: maxLines,
	}
}

// Append records one newline-stripped line for the given stream, stamped
// with the current time. Timestamps are non-decreasing within a stream
// because each stream has exactly one reader goroutine.
func (b *LogBuffer) Append(stream LogStream, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, LogLine{
		Stream:    stream,
		Text:      text,
		Timestamp: time.Now(),
	})

	if len(b.lines) > b.maxLines {
		excess := len(b.lines) - b.maxLines
		b.lines = b.lines[excess:]
		b.dropped += int64(excess)
	}
}

// Snapshot returns a copy of all retained lines in capture order.
func (b *LogBuffer) Snapshot() []LogLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lines := make([]LogLine, len(b.lines))
	copy(lines, b.lines)
	return lines
}

// SnapshotSince returns a copy of the retained lines whose timestamp is at
// or after since. A zero since returns everything.
func (b *LogBuffer) SnapshotSince(since time.Time) []LogLine {
	if since.IsZero() {
		return b.Snapshot()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	// Lines are timestamp-ordered, so everything from the first match on
	// qualifies.
	start := len(b.lines)
	for i, line := range b.lines {
		if !line.Timestamp.Before(since) {
			start = i
			break
		}
	}

	lines := make([]LogLine, len(b.lines)-start)
	copy(lines, b.lines[start:])
	return lines
}

// Len returns the number of retained lines.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Dropped returns how many lines have been discarded to the retention cap.
func (b *LogBuffer) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// captureStream drains one process output stream into the buffer until the
// stream closes, which happens at process exit at the latest. Ordinary
// closure is not an error; scanner errors after the pipe is torn down are
// expected and ignored.
func captureStream(reader io.ReadCloser, stream LogStream, buf *LogBuffer) {
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		buf.Append(stream, scanner.Text())
	}
}

package main

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a server log entry.
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is one server log record. These are the gateway's own logs, not
// captured process output; the TUI log page renders them.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// Logger keeps a bounded in-memory log and optionally mirrors entries to
// the console. Console output is suppressed while the TUI owns the
// terminal.
type Logger struct {
	mu            sync.RWMutex
	entries       []LogEntry
	maxEntries    int
	consoleOutput bool
}

// Global logger instance
var logger = &Logger{
	entries:       make([]LogEntry, 0),
	maxEntries:    2000,
	consoleOutput: true,
}

// SetConsoleOutput enables or disables the console mirror.
func (l *Logger) SetConsoleOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleOutput = enabled
}

// Log appends an entry, trimming the oldest entries past the retention cap.
func (l *Logger) Log(level LogLevel, source, message string, details ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
	}
	if len(details) > 0 {
		entry.Details = details[0]
	}

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}

	if l.consoleOutput && !isTUIActiveCheck() {
		output := fmt.Sprintf("[%s] %s [%s] %s",
			entry.Timestamp.Format("15:04:05"), entry.Level, source, message)
		if entry.Details != "" {
			output += fmt.Sprintf(" - %s", entry.Details)
		}
		fmt.Fprintln(os.Stderr, output)
	}
}

// Info logs at info level.
func (l *Logger) Info(source, message string, details ...string) {
	l.Log(LogLevelInfo, source, message, details...)
}

// Warn logs at warning level.
func (l *Logger) Warn(source, message string, details ...string) {
	l.Log(LogLevelWarn, source, message, details...)
}

// Error logs at error level.
func (l *Logger) Error(source, message string, details ...string) {
	l.Log(LogLevelError, source, message, details...)
}

// GetRecentEntries returns the most recent n entries.
func (l *Logger) GetRecentEntries(n int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	entries := make([]LogEntry, n)
	copy(entries, l.entries[len(l.entries)-n:])
	return entries
}

// Clear removes all retained entries.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]LogEntry, 0)
}

// LogInfo logs an info message to the global logger.
func LogInfo(source, message string, details ...string) {
	logger.Info(source, message, details...)
}

// LogWarn logs a warning message to the global logger.
func LogWarn(source, message string, details ...string) {
	logger.Warn(source, message, details...)
}

// LogError logs an error message to the global logger.
func LogError(source, message string, details ...string) {
	logger.Error(source, message, details...)
}

// SetConsoleLogging enables or disables console output for the global
// logger.
func SetConsoleLogging(enabled bool) {
	logger.SetConsoleOutput(enabled)
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel is the severity of a buffered application log entry.
// Levels follow the browser console vocabulary: "debug", "info", "warning", "error".
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// ParseLogLevel normalises level names from console API types, Log-domain
// entries and driver log formats ("SEVERE", "warn", "verbose", ...).
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "severe", "assert":
		return LogLevelError
	case "warning", "warn":
		return LogLevelWarning
	case "debug", "verbose", "trace":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// IsProblem reports whether the level is error or warning
func (l LogLevel) IsProblem() bool {
	return l == LogLevelError || l == LogLevelWarning
}

// LogContext identifies which execution environment produced a log entry
type LogContext string

const (
	// LogContextUI is the renderer (in-page) context
	LogContextUI LogContext = "ui"
	// LogContextHost is the main (supervising) process context
	LogContextHost LogContext = "host"
)

// LogEntry represents a single buffered application log entry
type LogEntry struct {
	Level     LogLevel   `json:"level" yaml:"level"`
	Message   string     `json:"message" yaml:"message"`
	Context   LogContext `json:"context" yaml:"context"`
	Source    string     `json:"source,omitempty" yaml:"source,omitempty"` // "console", "log", "exception"
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
}

// String formats the entry as "[level] message"
func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Level, e.Message)
}

// ProblemEntries returns the entries at error or warning level
func ProblemEntries(entries []LogEntry) []LogEntry {
	var problems []LogEntry
	for _, e := range entries {
		if e.Level.IsProblem() {
			problems = append(problems, e)
		}
	}
	return problems
}

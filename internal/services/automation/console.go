package automation

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"

	"github.com/ternarybob/shellprobe/internal/models"
)

// eventBuffer keeps raw CDP log events in arrival order. Entries are only
// built from them when someone asks, so the success path pays for an append.
type eventBuffer struct {
	mu     sync.Mutex
	events []any
}

// add is the target listener; it ignores events that carry no log output
func (b *eventBuffer) add(ev any) {
	switch ev.(type) {
	case *runtime.EventConsoleAPICalled, *cdplog.EventEntryAdded, *runtime.EventExceptionThrown:
	default:
		return
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// entries materialises the buffered events without draining them
func (b *eventBuffer) entries() []models.LogEntry {
	b.mu.Lock()
	events := make([]any, len(b.events))
	copy(events, b.events)
	b.mu.Unlock()

	out := make([]models.LogEntry, 0, len(events))
	for _, ev := range events {
		if entry, ok := entryFromEvent(ev); ok {
			out = append(out, entry)
		}
	}
	return out
}

// entryFromEvent converts a renderer log event into a UI-context LogEntry
func entryFromEvent(ev any) (models.LogEntry, bool) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		args := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			args = append(args, formatRemoteObject(arg))
		}
		return models.LogEntry{
			Level:     consoleLevel(e.Type),
			Message:   strings.Join(args, " "),
			Context:   models.LogContextUI,
			Source:    "console",
			Timestamp: timestampOf(e.Timestamp),
		}, true

	case *cdplog.EventEntryAdded:
		if e.Entry == nil {
			return models.LogEntry{}, false
		}
		return models.LogEntry{
			Level:     models.ParseLogLevel(string(e.Entry.Level)),
			Message:   e.Entry.Text,
			Context:   models.LogContextUI,
			Source:    "log",
			Timestamp: timestampOf(e.Entry.Timestamp),
		}, true

	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return models.LogEntry{}, false
		}
		msg := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			msg = strings.TrimSpace(msg + " " + e.ExceptionDetails.Exception.Description)
		}
		return models.LogEntry{
			Level:     models.LogLevelError,
			Message:   msg,
			Context:   models.LogContextUI,
			Source:    "exception",
			Timestamp: timestampOf(e.Timestamp),
		}, true
	}
	return models.LogEntry{}, false
}

func consoleLevel(t runtime.APIType) models.LogLevel {
	switch t {
	case runtime.APITypeError, runtime.APITypeAssert:
		return models.LogLevelError
	case runtime.APITypeWarning:
		return models.LogLevelWarning
	case runtime.APITypeDebug, runtime.APITypeTrace:
		return models.LogLevelDebug
	default:
		return models.LogLevelInfo
	}
}

// formatRemoteObject renders a console argument the way devtools prints it:
// strings unquoted, primitives as JSON, objects by description.
func formatRemoteObject(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if len(o.Value) > 0 {
		var s string
		if err := json.Unmarshal([]byte(o.Value), &s); err == nil {
			return s
		}
		return string(o.Value)
	}
	if o.UnserializableValue != "" {
		return string(o.UnserializableValue)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

func timestampOf(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}

// Package diaglog writes structured NDJSON diagnostics for the reveal engine.
// Enabled by REVEAL_DEBUG=true. When the variable is absent every Log call is
// a no-op and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnvDebug switches diagnostics on.
const EnvDebug = "REVEAL_DEBUG"

// Components.
const (
	ComponentBuilder    = "builder"
	ComponentTimeline   = "timeline"
	ComponentVoice      = "voice"
	ComponentPlayer     = "player"
	ComponentBridge     = "bridge"
	ComponentDiagExport = "diag-export"
	ComponentRevealCore = "reveal-core"
)

// Events.
const (
	EventLineStart        = "line_start"
	EventLineComplete     = "line_complete"
	EventLineInterrupted  = "line_interrupted"
	EventLineKilled       = "line_killed"
	EventMarkupFallback   = "markup_fallback"
	EventAttributeUnknown = "attribute_unknown"
	EventCommandInvalid   = "command_invalid"
	EventAdvanceRequested = "advance_requested"
	EventVoiceMissing     = "voice_missing"
	EventVoiceMode        = "voice_mode"
	EventBridgeConnect    = "bridge_connect"
	EventBridgeDisconnect = "bridge_disconnect"
	EventBridgeSend       = "bridge_send"
	EventBridgeRecv       = "bridge_recv"
	EventControlCommand   = "control_command"
)

// LogEntry is one event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`
	Component string      `json:"component"`
	Event     string      `json:"event"`
	Line      int         `json:"line,omitempty"`
	Speaker   string      `json:"speaker,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// Logger writes LogEntry values to a rolling NDJSON file.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the log file at path. With diagnostics disabled,
// path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	rw, err := newRollingWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry and appends it to the file.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Enabled reports whether entries are being written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the file. Safe on a nil or disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether REVEAL_DEBUG is "true".
func IsDebugEnabled() bool {
	return os.Getenv(EnvDebug) == "true"
}

// NewNoOp returns a logger that drops everything.
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}

// DefaultPath is where the daemon keeps its diagnostics.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "linereveal", "reveal-debug.ndjson")
	}
	return filepath.Join(home, ".cache", "linereveal", "reveal-debug.ndjson")
}

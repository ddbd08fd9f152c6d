// Package events persists capture lifecycle events as JSON lines.
package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of capture event.
type EventType string

const (
	EventStarted  EventType = "started"
	EventStopped  EventType = "stopped"
	EventError    EventType = "error"
	EventSilence  EventType = "silence"
	EventRecovery EventType = "recovery"

	// Recording upload lifecycle.
	EventUploadQueued    EventType = "upload_queued"
	EventUploadCompleted EventType = "upload_completed"
	EventUploadFailed    EventType = "upload_failed"
	EventUploadRetry     EventType = "upload_retry"
	EventUploadAbandoned EventType = "upload_abandoned"
)

// CaptureEvent represents a single capture event.
type CaptureEvent struct {
	Timestamp  time.Time `json:"ts"`
	TargetKind string    `json:"target_kind,omitempty"`
	TargetName string    `json:"target_name,omitempty"`
	ProcessID  int       `json:"pid,omitempty"`
	Event      EventType `json:"event"`
	Message    string    `json:"msg,omitempty"`
	Error      string    `json:"error,omitempty"`
	LevelDB    float64   `json:"level_db,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`

	// Recording upload fields.
	RecorderName string `json:"recorder,omitempty"`
	Filename     string `json:"filename,omitempty"`
	S3Key        string `json:"s3_key,omitempty"`
	RetryCount   int    `json:"retry,omitempty"`
}

// Logger writes capture events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *CaptureEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// ReadLast reads the last n events from the log file, newest first.
func ReadLast(filePath string, n int) ([]CaptureEvent, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []CaptureEvent{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	start := 0
	if len(lines) > n {
		start = len(lines) - n
	}
	lines = lines[start:]

	events := make([]CaptureEvent, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var event CaptureEvent
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	return events, nil
}

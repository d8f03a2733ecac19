package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventPhase     EventType = "phase"
	EventSchema    EventType = "schema"
	EventShot      EventType = "shot"
	EventTake      EventType = "take"
	EventAsset     EventType = "asset"
	EventMeta      EventType = "meta"
	EventCopy      EventType = "copy"
	EventRemediate EventType = "remediate"
	EventIntegrity EventType = "integrity"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the migration run
type Event struct {
	Timestamp    time.Time         `json:"ts"`
	Level        EventLevel        `json:"level"`
	Event        EventType         `json:"event"`
	Phase        string            `json:"phase,omitempty"`
	ShotName     string            `json:"shot_name,omitempty"`
	ShotID       int64             `json:"shot_id,omitempty"`
	SrcPath      string            `json:"src_path,omitempty"`
	DestPath     string            `json:"dest_path,omitempty"`
	Action       string            `json:"action,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	BytesWritten int64             `json:"bytes_written,omitempty"`
	Duration     int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error        string            `json:"error,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogPhase logs the end of a pipeline phase
func (l *EventLogger) LogPhase(phase, status string, duration time.Duration, errCount int) error {
	level := LevelInfo
	if errCount > 0 {
		level = LevelError
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventPhase,
		Phase:    phase,
		Action:   status,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"errors": strconv.Itoa(errCount),
		},
	})
}

// LogShot logs the migration of one shot row
func (l *EventLogger) LogShot(shotName string, shotID int64, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventShot,
		ShotName: shotName,
		ShotID:   shotID,
		Error:    errMsg,
	})
}

// LogTake logs the migration of one take row
func (l *EventLogger) LogTake(shotName string, shotID int64, filePath string, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventTake,
		ShotName: shotName,
		ShotID:   shotID,
		DestPath: filePath,
		Error:    errMsg,
	})
}

// LogAsset logs the migration of one asset row
func (l *EventLogger) LogAsset(idKey, filePath string, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventAsset,
		DestPath: filePath,
		Error:    errMsg,
		Extra:    map[string]string{"id_key": idKey},
	})
}

// LogCopy logs a media copy
func (l *EventLogger) LogCopy(srcPath, destPath string, bytesWritten int64, duration time.Duration, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:        level,
		Event:        EventCopy,
		SrcPath:      srcPath,
		DestPath:     destPath,
		Action:       "copy",
		BytesWritten: bytesWritten,
		Duration:     duration.Milliseconds(),
		Error:        errMsg,
	})
}

// LogRemediation logs a placeholder thumbnail created for a zero-size video
func (l *EventLogger) LogRemediation(destPath, reason string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventRemediate,
		DestPath: destPath,
		Action:   "create_placeholder",
		Reason:   reason,
	})
}

// LogIntegrity logs the outcome of an integrity section
func (l *EventLogger) LogIntegrity(section string, passed bool, errCount, warnCount int) error {
	level := LevelInfo
	if !passed {
		level = LevelError
	}

	return l.Log(&Event{
		Level:  level,
		Event:  EventIntegrity,
		Phase:  section,
		Action: fmt.Sprintf("passed=%t", passed),
		Extra: map[string]string{
			"errors":   strconv.Itoa(errCount),
			"warnings": strconv.Itoa(warnCount),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

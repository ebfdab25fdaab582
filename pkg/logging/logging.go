package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel defines the severity of a log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SlogLevel converts a LogLevel to the equivalent slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is the structured entry handed to a subscribed consumer
// (e.g. a future interactive frontend) when channel mode is active.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	defaultLogger *slog.Logger
	entryChannel  chan LogEntry
	channelMode   bool
)

const defaultChannelBufferSize = 2048

// InitForCLI initializes the logging system for console operation.
// Log entries are written to the given output as slog text lines.
func InitForCLI(level LogLevel, output io.Writer) {
	channelMode = false
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.SlogLevel()})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// InitWithChannel initializes the logging system in channel mode: entries are
// delivered to the returned channel instead of being written directly, so a
// display layer can render them. A fallback text handler on stderr remains
// active for anything logged before the consumer starts draining.
func InitWithChannel(level LogLevel, bufferSize int) <-chan LogEntry {
	if bufferSize <= 0 {
		bufferSize = defaultChannelBufferSize
	}
	channelMode = true
	entryChannel = make(chan LogEntry, bufferSize)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.SlogLevel()})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
	return entryChannel
}

// CloseChannel closes the entry channel. Call on shutdown after the consumer
// has stopped.
func CloseChannel() {
	if entryChannel != nil {
		close(entryChannel)
		entryChannel = nil
		channelMode = false
	}
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	if channelMode && entryChannel != nil {
		entryChannel <- LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		}
		return
	}

	if defaultLogger == nil {
		// Not initialized; emergency fallback so messages are never lost.
		fmt.Fprintf(os.Stderr, "[%s] [%s] %s\n", level, subsystem, msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  error: %v\n", err)
		}
		return
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

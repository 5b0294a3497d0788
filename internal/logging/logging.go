// Package logging sets up the process logger and bridges engine events to it.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/hsmerge/internal/reconcile"
)

// FileName is the log file created under the log directory.
const FileName = "merge_operations.log"

// Options configures the logger.
type Options struct {
	Dir   string
	Level string
	// Console receives the human-readable mirror. Nil means stderr.
	Console io.Writer
	NoColor bool
}

// Logger owns the log file handle.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New opens <dir>/merge_operations.log for appending and returns a logger
// that writes JSON lines there and a console rendering to opts.Console.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(opts.Dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	output := zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	})
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", "hsmerge").Logger()
	return &Logger{Logger: logger, file: f}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// ParseLevel maps a config string to a zerolog level. Empty means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "off", "none", "disabled":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// Sink writes each engine event as one log line.
type Sink struct {
	log zerolog.Logger
}

// NewSink wraps a logger.
func NewSink(log zerolog.Logger) *Sink {
	return &Sink{log: log}
}

func (s *Sink) Emit(ev reconcile.Event) {
	var e *zerolog.Event
	switch ev.Type {
	case reconcile.EventGroupAborted, reconcile.EventValidationFailed:
		e = s.log.Error().Err(ev.Err)
	case reconcile.EventGroupSkipped:
		e = s.log.Warn()
	case reconcile.EventAssociationDeleted, reconcile.EventAssociationCreated:
		e = s.log.Debug()
	default:
		e = s.log.Info()
	}

	e = e.Str("event", string(ev.Type))
	if ev.Key != "" {
		e = e.Str("key", ev.Key)
	}
	if ev.ID != "" {
		e = e.Str("company_id", string(ev.ID))
	}
	if ev.Target != "" {
		e = e.Str("target_id", string(ev.Target))
	}
	if ev.Direction != "" {
		e = e.Str("direction", string(ev.Direction))
	}
	e.Msg(describe(ev))
}

func describe(ev reconcile.Event) string {
	switch ev.Type {
	case reconcile.EventValidated:
		return "Validation passed: " + ev.Message
	case reconcile.EventValidationFailed:
		return "Validation failed: " + ev.Message
	case reconcile.EventGroupStarted:
		return "Processing key " + ev.Key
	case reconcile.EventGroupSkipped:
		return fmt.Sprintf("Skipping key %s: %s %s", ev.Key, ev.ID, ev.Message)
	case reconcile.EventGroupEnriched:
		return "Fetched associations: " + ev.Message
	case reconcile.EventAssociationDeleted:
		return fmt.Sprintf("Removed association %s -> %s", ev.ID, ev.Target)
	case reconcile.EventCompanyMerged:
		return fmt.Sprintf("Merged company %s into %s", ev.ID, ev.Target)
	case reconcile.EventAssociationCreated:
		return fmt.Sprintf("Created association %s -> %s", ev.ID, ev.Target)
	case reconcile.EventGroupCompleted:
		return fmt.Sprintf("Completed key %s, surviving company %s", ev.Key, ev.ID)
	case reconcile.EventGroupAborted:
		return "Run aborted: " + ev.Message
	default:
		if ev.Message != "" {
			return ev.Message
		}
		return string(ev.Type)
	}
}

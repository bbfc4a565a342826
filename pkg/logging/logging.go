// Package logging provides named, leveled loggers for autosync.
//
// Every logger writes through a Sink, which fans out to standard output and,
// optionally, a size-rotated log file. Loggers derived from the same Sink may
// be used from many goroutines; each entry is written as a single line.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EnvLevel is the environment variable consulted by LevelFromEnv.
const EnvLevel = "LOG_LEVEL"

// Rotation limits for the file sink.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel maps a severity name to a Level. Unknown names yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "CRITICAL", "FATAL":
		return LevelError
	default:
		return LevelInfo
	}
}

// LevelFromEnv reads LOG_LEVEL.
func LevelFromEnv() Level {
	return ParseLevel(os.Getenv(EnvLevel))
}

// SinkOptions configures where log lines go.
type SinkOptions struct {
	// Stdout receives every line. Defaults to os.Stdout.
	Stdout io.Writer
	// FilePath enables a rotating file sink when non-empty.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// Sink serialises writes from any number of loggers.
type Sink struct {
	mu   sync.Mutex
	out  io.Writer
	file *lumberjack.Logger
}

// NewSink builds a sink. The log file's directory is created if missing.
func NewSink(opts SinkOptions) (*Sink, error) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	s := &Sink{out: stdout}

	if opts.FilePath != "" {
		if dir := filepath.Dir(opts.FilePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = DefaultMaxSizeMB
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = DefaultMaxBackups
		}
		s.file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
		s.out = io.MultiWriter(stdout, s.file)
	}
	return s, nil
}

func (s *Sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(line)
}

// Close flushes and closes the file sink, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Logger provides leveled logging under a name.
type Logger struct {
	name   string
	level  Level
	sink   *Sink
	fields map[string]any
	now    func() time.Time
}

// NewLogger creates a logger named name writing to sink.
func NewLogger(name string, level Level, sink *Sink) *Logger {
	if sink == nil {
		sink = &Sink{out: os.Stdout}
	}
	return &Logger{
		name:   name,
		level:  level,
		sink:   sink,
		fields: make(map[string]any),
		now:    time.Now,
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewLogger("discard", LevelError, &Sink{out: io.Discard})
}

// Name returns the logger's scope name.
func (l *Logger) Name() string {
	return l.name
}

// Level returns the logger's minimum level.
func (l *Logger) Level() Level {
	return l.level
}

// Named returns a logger with a different scope name that shares the sink,
// level and fields.
func (l *Logger) Named(name string) *Logger {
	n := l.clone()
	n.name = name
	return n
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	n := l.clone()
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{
		name:   l.name,
		level:  l.level,
		sink:   l.sink,
		fields: fields,
		now:    l.now,
	}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level.rank() >= l.level.rank()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(LevelError, msg, fields...)
}

// ErrorErr logs an error message with an error value.
func (l *Logger) ErrorErr(msg string, err error, fields ...map[string]any) {
	combined := map[string]any{"error": err.Error()}
	for _, f := range fields {
		for k, v := range f {
			combined[k] = v
		}
	}
	l.log(LevelError, msg, combined)
}

func (l *Logger) log(level Level, msg string, fields ...map[string]any) {
	if !l.Enabled(level) {
		return
	}

	merged := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	var b strings.Builder
	b.WriteString(l.now().Format(time.RFC3339))
	b.WriteString(" - ")
	b.WriteString(l.name)
	b.WriteString(" - ")
	b.WriteString(strings.ToUpper(string(level)))
	b.WriteString(" - ")
	b.WriteString(msg)

	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, merged[k])
		}
		b.WriteByte(']')
	}
	b.WriteByte('\n')

	l.sink.write([]byte(b.String()))
}

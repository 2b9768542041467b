// Package logger provides the level-prefixed loggers used by the parser,
// the registry and the command line tool.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level orders log output by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel converts a config value ("debug", "info", "warn", "error").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is implemented by every logger in this package.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// line formats a single prefixed log line.
func line(level Level, format string, args ...any) string {
	return "[" + level.String() + "] " + fmt.Sprintf(format, args...)
}

// WriterLogger writes debug and info lines to out and warnings and errors
// to errOut.
type WriterLogger struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	level  Level
}

// New returns a logger writing to out and errOut at or above level.
func New(out, errOut io.Writer, level Level) *WriterLogger {
	return &WriterLogger{out: out, errOut: errOut, level: level}
}

func (l *WriterLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	w := l.out
	if level >= LevelWarn {
		w = l.errOut
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(w, line(level, format, args...))
}

func (l *WriterLogger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *WriterLogger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *WriterLogger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *WriterLogger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

// Open builds a logger from config values. output is "stdout", "stderr" or
// a file path, which is opened for appending. The returned closer is never
// nil.
func Open(output, level string, stdout, stderr io.Writer) (Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	switch output {
	case "", "stderr":
		return New(stderr, stderr, lvl), io.NopCloser(nil), nil
	case "stdout":
		return New(stdout, stderr, lvl), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(f, f, lvl), f, nil
}

// Buffered captures log lines in memory.
type Buffered struct {
	mu    sync.Mutex
	level Level
	lines []string
}

// NewBuffered creates a buffered logger recording lines at or above level.
func NewBuffered(level Level) *Buffered {
	return &Buffered{level: level, lines: make([]string, 0)}
}

func (l *Buffered) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line(level, format, args...))
}

func (l *Buffered) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Buffered) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Buffered) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Buffered) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

// Lines returns a copy of the captured lines.
func (l *Buffered) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// String returns all captured lines, newline terminated.
func (l *Buffered) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	return strings.Join(l.lines, "\n") + "\n"
}

// Reset clears all captured lines.
func (l *Buffered) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = l.lines[:0]
}

type nop struct{}

func (nop) Debugf(string, ...any) {}
func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Errorf(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nop{}
}

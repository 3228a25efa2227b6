// Package logging wraps zerolog with subsystem-scoped child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// levelOrder is the order Levels reports; "silent" disables output.
var levelOrder = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

var levels = map[string]zerolog.Level{
	"silent": zerolog.Disabled,
	"fatal":  zerolog.FatalLevel,
	"error":  zerolog.ErrorLevel,
	"warn":   zerolog.WarnLevel,
	"info":   zerolog.InfoLevel,
	"debug":  zerolog.DebugLevel,
	"trace":  zerolog.TraceLevel,
}

// Levels lists the accepted level names, quietest first.
func Levels() []string { return append([]string(nil), levelOrder...) }

// ValidLevel reports whether s is one of Levels.
func ValidLevel(s string) bool {
	_, ok := levels[s]
	return ok
}

// parseLevel maps unknown names, including "", to info.
func parseLevel(s string) zerolog.Level {
	if lvl, ok := levels[s]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Logger is a zerolog.Logger that hands out tagged children.
type Logger struct {
	zl zerolog.Logger
}

// Options describes the root logger.
type Options struct {
	Level  string
	Format string // FormatPretty or FormatJSON
	File   string // also append JSON lines here when set
}

// New returns a root logger on w. A nil w means pretty output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = pretty(os.Stderr)
	}
	return &Logger{zl: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

// Configure builds the process logger. Close the returned closer on exit
// to release the log file.
func Configure(opts Options) (*Logger, io.Closer, error) {
	var console io.Writer = os.Stderr
	if opts.Format != FormatJSON {
		console = pretty(os.Stderr)
	}
	if opts.File == "" {
		return New(console, opts.Level), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	return New(zerolog.MultiLevelWriter(console, f), opts.Level), f, nil
}

func pretty(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

// Sub tags the child with subsystem=name.
func (l *Logger) Sub(name string) *Logger { return l.With("subsystem", name) }

// With returns a child carrying one more string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Zerolog exposes the wrapped logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

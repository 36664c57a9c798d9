// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps charmbracelet/log with the structured,
// key-value logging style used across the ambient parts of this service:
// a single process-wide Logger, file-backed with a stderr fallback, and
// one log line per admission/effector/config event carrying attributes
// rather than formatted prose.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the structured logger used throughout detd.
type Logger struct {
	*log.Logger
}

// Options configures Logger construction.
type Options struct {
	// Path to the log file. Empty means stderr only.
	Path string
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Syslog optionally ships every line to a remote collector as well.
	Syslog SyslogConfig
}

// New builds a Logger per opts. If Path is set but cannot be opened, it
// falls back to stderr and logs why. If Syslog.Enabled is set, lines are
// written to both the file/stderr writer and the syslog collector.
func New(opts Options) (*Logger, error) {
	var out io.Writer = os.Stderr

	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			fallback := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
			fallback.Warn("could not open log file, falling back to stderr", "path", opts.Path, "err", err)
			out = os.Stderr
		} else {
			out = f
		}
	}

	if opts.Syslog.Enabled {
		sw, err := NewSyslogWriter(opts.Syslog)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(out, sw)
	}

	l := log.NewWithOptions(out, log.Options{ReportTimestamp: true, ReportCaller: false})
	l.SetLevel(parseLevel(opts.Level))

	return &Logger{Logger: l}, nil
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// With returns a child Logger carrying additional key-value context,
// typically the interface name for admission-pipeline events.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...)}
}

// Noop returns a Logger that discards everything, for tests.
func Noop() *Logger {
	return &Logger{Logger: log.NewWithOptions(io.Discard, log.Options{})}
}

// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package logger provides leveled logging to the console and an
// append-only log file. Probe failures, launch failures, and terminal
// job statuses all land in the file regardless of any front end.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Close() error
}

const (
	colorBlue   = "\033[1;94m"
	colorYellow = "\033[1;93m"
	colorRed    = "\033[1;91m"
	colorCyan   = "\033[1;96m"
	colorReset  = "\033[0m"
)

type logger struct {
	prefix string
	color  bool

	mu   sync.Mutex
	file *os.File
}

// New creates a console-only logger.
func New(prefix string) Logger {
	return &logger{
		prefix: prefix,
		color:  useColor(),
	}
}

// NewWithFile creates a logger that also appends to path, creating the
// parent directory if needed. Call Close when done.
func NewWithFile(prefix, path string) (Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &logger{
		prefix: prefix,
		color:  useColor(),
		file:   f,
	}, nil
}

func useColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == ""
}

func (l *logger) line(level, color, text string) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	plain := ts + " [" + level + "] " + l.prefix + ": " + text + "\n"

	out := os.Stdout
	if level == "ERROR" {
		out = os.Stderr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.color {
		io.WriteString(out, ts+" "+color+"["+level+"]"+colorReset+" "+l.prefix+": "+text+"\n")
	} else {
		io.WriteString(out, plain)
	}
	if l.file != nil {
		io.WriteString(l.file, plain)
	}
}

func (l *logger) Info(format string, args ...interface{}) {
	l.line("INFO", colorBlue, fmt.Sprintf(format, args...))
}

func (l *logger) Warn(format string, args ...interface{}) {
	l.line("WARN", colorYellow, fmt.Sprintf(format, args...))
}

func (l *logger) Error(format string, args ...interface{}) {
	l.line("ERROR", colorRed, fmt.Sprintf(format, args...))
}

func (l *logger) Debug(format string, args ...interface{}) {
	l.line("DEBUG", colorCyan, fmt.Sprintf(format, args...))
}

func (l *logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Close() error                 { return nil }

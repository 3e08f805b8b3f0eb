// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is the pluggable logging surface. Soft step failures are
// reported here instead of as returned errors, so a real logger is
// strongly recommended for production runs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

type stdLogger struct {
	logger *log.Logger
}

// NewDefaultLogger logs to stdout with timestamps.
func NewDefaultLogger() Logger {
	return NewLogger(os.Stdout)
}

// NewLogger logs to an arbitrary writer.
func NewLogger(w io.Writer) Logger {
	return &stdLogger{logger: log.New(w, "", log.LstdFlags)}
}

func (l *stdLogger) Debug(msg string, args ...any) {
	l.logger.Println("[DEBUG]", fmt.Sprintf(msg, args...))
}

func (l *stdLogger) Info(msg string, args ...any) {
	l.logger.Println("[INFO]", fmt.Sprintf(msg, args...))
}

func (l *stdLogger) Warning(msg string, args ...any) {
	l.logger.Println("[WARN]", fmt.Sprintf(msg, args...))
}

func (l *stdLogger) Error(msg string, args ...any) {
	l.logger.Println("[ERROR]", fmt.Sprintf(msg, args...))
}

type noopLogger struct{}

// NewNoopLogger discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(msg string, args ...any)   {}
func (noopLogger) Info(msg string, args ...any)    {}
func (noopLogger) Warning(msg string, args ...any) {}
func (noopLogger) Error(msg string, args ...any)   {}

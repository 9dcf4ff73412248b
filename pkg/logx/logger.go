// Package logx provides the leveled logging interface threaded through
// the transport, service, control, and diagnostics packages by
// dependency injection, replacing the package-global logger the
// original implementation pulls in with `logging.getLogger('default')`.
package logx

import (
	charmlog "github.com/charmbracelet/log"
)

// Logger is the leveled sink every package here depends on. Any type
// satisfying this interface can be supplied — a no-op logger in tests,
// t.Logf wrapped to match, or the charmbracelet-backed default below.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// charmLogger adapts *charmlog.Logger to Logger; the methods already
// line up, so this is a pass-through.
type charmLogger struct {
	l *charmlog.Logger
}

// NewCharm wraps a charmbracelet/log logger as a Logger.
func NewCharm(l *charmlog.Logger) Logger {
	return &charmLogger{l: l}
}

// Default returns a charmbracelet/log logger writing to stderr at Info
// level, matching the teacher's default startup logger.
func Default() Logger {
	return NewCharm(charmlog.Default())
}

func (c *charmLogger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...any)  { c.l.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...any)  { c.l.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }

// Nop discards everything; useful in tests that don't want log noise.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}

package logger

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestLogger buffers entries and only writes them to the test output when the
// test failed
type TestLogger struct {
	t      testing.TB
	fields []any
	sink   *sink
}

type sink struct {
	mu     sync.Mutex
	buffer []logEntry
}

type logEntry struct {
	level     string
	message   string
	args      []any
	timestamp time.Time
}

// NewTestLogger creates a TestLogger bound to t
func NewTestLogger(t testing.TB) *TestLogger {
	l := &TestLogger{t: t, sink: &sink{}}

	t.Cleanup(l.flushIfFailed)

	return l
}

var _ Logger = (*TestLogger)(nil)

func (l *TestLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *TestLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *TestLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *TestLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

func (l *TestLogger) With(args ...any) Logger {
	fields := append(append([]any{}, l.fields...), args...)
	return &TestLogger{t: l.t, fields: fields, sink: l.sink}
}

// Messages returns the buffered messages logged at level, used by tests that
// assert on logging
func (l *TestLogger) Messages(level string) []string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msgs := []string{}
	for _, e := range l.sink.buffer {
		if e.level == level {
			msgs = append(msgs, e.message)
		}
	}

	return msgs
}

func (l *TestLogger) add(level, msg string, args []any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.buffer = append(l.sink.buffer, logEntry{
		level:     level,
		message:   msg,
		args:      append(append([]any{}, l.fields...), args...),
		timestamp: time.Now(),
	})
}

func (l *TestLogger) flushIfFailed() {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.t.Failed() {
		l.t.Log("=== Buffered Logs (test failed) ===")
		for _, entry := range l.sink.buffer {
			l.t.Log(formatEntry(entry))
		}
		l.t.Log("=== End Buffered Logs ===")
	}

	l.sink.buffer = l.sink.buffer[:0]
}

func formatEntry(e logEntry) string {
	msg := fmt.Sprintf("[%s] [%s] %s", e.timestamp.Format("15:04:05.000"), e.level, e.message)

	parts := []string{}
	for i := 0; i < len(e.args); i += 2 {
		if i+1 < len(e.args) {
			parts = append(parts, fmt.Sprintf("%v=%v", e.args[i], e.args[i+1]))
		} else {
			parts = append(parts, fmt.Sprintf("%v", e.args[i]))
		}
	}

	if len(parts) > 0 {
		msg += " " + strings.Join(parts, " ")
	}

	return msg
}

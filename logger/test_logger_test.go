package logger

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTestLoggerBuffersEntriesByLevel(t *testing.T) {
	l := NewTestLogger(t)

	l.Info("installed", "category", "xsd")
	l.Debug("candidate deferred")
	l.Warn("fetch failed", "url", "http://localhost")

	require.Equal(t, []string{"installed"}, l.Messages("INFO"))
	require.Equal(t, []string{"fetch failed"}, l.Messages("WARN"))
	require.Empty(t, l.Messages("ERROR"))
}

func TestTestLoggerWithSharesBufferAndPrependsFields(t *testing.T) {
	l := NewTestLogger(t)
	child := l.With("category", "xsd")

	child.Info("bound")

	require.Equal(t, []string{"bound"}, l.Messages("INFO"))
	require.Equal(t, []any{"category", "xsd"}, l.sink.buffer[0].args)
}

func TestTestLoggerIsSafeForConcurrentUse(t *testing.T) {
	l := NewTestLogger(t)

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l.Info("message", "goroutine", id)
		}(i)
	}
	wg.Wait()

	require.Len(t, l.Messages("INFO"), 10)
}

func TestFormatEntryHandlesOddArgs(t *testing.T) {
	out := formatEntry(logEntry{level: "INFO", message: "msg", args: []any{"a", 1, "single"}})

	require.Contains(t, out, "[INFO] msg a=1 single")
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := NewWriterLogger(buf, "warn")

	l.Info("hidden")
	l.With("category", "xsd").Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "category=xsd")
}

func TestNopLoggerDiscards(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	require.NotNil(t, l.With("a", "b"))
}

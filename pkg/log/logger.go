package log

import (
	"time"
	"unicode/utf8"
)

// Logger receives protocol log events. Implementations must be safe for
// concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(event Event)

// Log calls f.
func (f LoggerFunc) Log(event Event) { f(event) }

// Emit stamps the event with the current time when unset and logs it. A nil
// logger drops the event.
func Emit(l Logger, event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.Log(event)
}

// MaxTextSize is the longest frame text kept in a MessageEvent.
const MaxTextSize = 512

// Truncate cuts text to at most MaxTextSize bytes and reports whether it
// did. The cut never splits a UTF-8 sequence.
func Truncate(text string) (string, bool) {
	if len(text) <= MaxTextSize {
		return text, false
	}
	n := MaxTextSize
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n], true
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)

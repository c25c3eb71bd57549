package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger whose entries are kept in memory for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger observes every level, debug included.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	return &TestLogger{Logger: New(zap.New(core)), observed: observed}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// ForJob returns entries logged with the job.id of jobID in context.
func (t *TestLogger) ForJob(jobID string) *observer.ObservedLogs {
	return t.observed.FilterField(zap.String("job.id", jobID))
}

func (t *TestLogger) matching(level zapcore.Level, msgContains string) []observer.LoggedEntry {
	return t.observed.FilterLevelExact(level).FilterMessageSnippet(msgContains).All()
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if len(t.matching(level, msgContains)) == 0 {
		tb.Errorf("no %v entry containing %q; logged: %v", level, msgContains, messages(t.observed.All()))
	}
}

// AssertNotLogged fails tb if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if n := len(t.matching(level, msgContains)); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, msgContains)
	}
}

// AssertField fails tb unless an entry containing msg carries the string
// field key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key, expected string) {
	tb.Helper()
	if t.FilterMessage(msg).FilterField(zap.String(key, expected)).Len() == 0 {
		tb.Errorf("no entry containing %q with %s=%q", msg, key, expected)
	}
}

func messages(entries []observer.LoggedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Level.String() + ": " + e.Message
	}
	return out
}

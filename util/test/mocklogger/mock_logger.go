// Package mocklogger provides a call-counting ulogger.Logger for tests that
// assert on logging behavior rather than output format.
package mocklogger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dashbridge/creditbridge/ulogger"
)

// MockLogger records every call per level, thread-safely, along with the
// rendered message so tests can assert on content as well as counts.
type MockLogger struct {
	mu       sync.Mutex
	calls    map[string]int
	messages map[string][]string
}

// NewTestLogger creates an empty MockLogger.
func NewTestLogger() *MockLogger {
	return &MockLogger{
		calls:    make(map[string]int),
		messages: make(map[string][]string),
	}
}

// LogLevel always reports 0; the mock has no level gating.
func (l *MockLogger) LogLevel() int {
	return 0
}

// SetLogLevel is a no-op.
func (l *MockLogger) SetLogLevel(_ string) {
}

// New returns a fresh MockLogger; recorded calls do not carry over.
func (l *MockLogger) New(_ string, _ ...ulogger.Option) ulogger.Logger {
	return NewTestLogger()
}

// Duplicate returns the same instance so call counts accumulate across
// derived loggers, which is what retry-style helpers need asserted.
func (l *MockLogger) Duplicate(_ ...ulogger.Option) ulogger.Logger {
	return l
}

func (l *MockLogger) Debugf(format string, args ...interface{}) {
	l.recordCall("Debugf", format, args...)
}

func (l *MockLogger) Infof(format string, args ...interface{}) {
	l.recordCall("Infof", format, args...)
}

func (l *MockLogger) Warnf(format string, args ...interface{}) {
	l.recordCall("Warnf", format, args...)
}

func (l *MockLogger) Errorf(format string, args ...interface{}) {
	l.recordCall("Errorf", format, args...)
}

func (l *MockLogger) Fatalf(format string, args ...interface{}) {
	l.recordCall("Fatalf", format, args...)
}

func (l *MockLogger) recordCall(methodName, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[methodName]++
	l.messages[methodName] = append(l.messages[methodName], fmt.Sprintf(format, args...))
}

// CallCount returns how many times the named method was called.
func (l *MockLogger) CallCount(methodName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls[methodName]
}

// Messages returns the rendered messages recorded for the named method.
func (l *MockLogger) Messages(methodName string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.messages[methodName]))
	copy(out, l.messages[methodName])

	return out
}

// AssertNumberOfCalls fails the test when the recorded count differs.
func (l *MockLogger) AssertNumberOfCalls(t *testing.T, methodName string, expectedCalls int) {
	t.Helper()

	actualCalls := l.CallCount(methodName)
	if actualCalls != expectedCalls {
		t.Errorf("Expected %v calls to %s, got %v", expectedCalls, methodName, actualCalls)
	}
}

// Reset clears all recorded calls and messages.
func (l *MockLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = make(map[string]int)
	l.messages = make(map[string][]string)
}

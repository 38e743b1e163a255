package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type logCall struct {
	level   string
	message string
	args    []any
}

type legacyLoggerSpy struct {
	calls []logCall
}

func (l *legacyLoggerSpy) Debug(format string, args ...any) {
	l.calls = append(l.calls, logCall{level: "debug", message: format, args: args})
}
func (l *legacyLoggerSpy) Info(format string, args ...any) {
	l.calls = append(l.calls, logCall{level: "info", message: format, args: args})
}
func (l *legacyLoggerSpy) Warn(format string, args ...any) {
	l.calls = append(l.calls, logCall{level: "warn", message: format, args: args})
}
func (l *legacyLoggerSpy) Error(format string, args ...any) {
	l.calls = append(l.calls, logCall{level: "error", message: format, args: args})
}

func TestNormalizeLogger(t *testing.T) {
	assert.IsType(t, defLogger{}, normalizeLogger(nil))

	spy := &legacyLoggerSpy{}
	assert.Same(t, spy, normalizeLogger(spy))
}

func TestNewline(t *testing.T) {
	assert.Equal(t, "a\n", newline("a"))
	assert.Equal(t, "a\n", newline("a\n"))
	assert.Equal(t, "", newline(""))
}

func TestUserEmailsLogsThroughInjectedLogger(t *testing.T) {
	spy := &legacyLoggerSpy{}
	repo := NewUserEmailsRepository(nil, WithUserEmailsLogger(spy))

	assert.Nil(t, repo.Insert(context.Background(), nil))
	assert.Len(t, spy.calls, 1)
	assert.Equal(t, "error", spy.calls[0].level)
	assert.Equal(t, "err: %v", spy.calls[0].message)
}

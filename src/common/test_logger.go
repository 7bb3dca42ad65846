package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter maps logger output into calls to testing.T.Log so that
// logging only shows up for failed tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a debug-level logrus logger wired into t.
func NewTestLogger(t testing.TB) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}

// NewTestEntry returns a logger entry tagged with the test's instance id,
// for multi-agent tests where output from several instances interleaves.
func NewTestEntry(t testing.TB, id string) *logrus.Entry {
	return NewTestLogger(t).WithField("id", id)
}

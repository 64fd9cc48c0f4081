package logger_test

import (
	"testing"

	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/stretchr/testify/assert"
)

func TestBuffer(t *testing.T) {
	l := logger.NewBuffer()
	l.Info("hello %s", "world")
	func(x logger.Logger) {
		x.Debug("foo bar")
		x.WithFields(logger.StringsField("cmd", []string{"pytest", "tests"})).Warn("exec")
	}(l)
	assert.Equal(t, []string{
		"[info] hello world",
		"[debug] foo bar",
		`[warn] exec cmd="pytest tests"`,
	}, l.Messages)
}

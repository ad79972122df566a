package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logger.InfoLevel, logger.ParseLevel("INFO"))
	assert.Equal(t, logger.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("warning"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("bogus"))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", true)
	defer logger.InitWithWriter(&bytes.Buffer{}, "warning", true)

	log := logger.Component("storage").With("session", "7")
	log.Info().Msg("session created")
	log.ErrorWithCode(errors.New().New(errors.ErrTimeout)).Msg("write failed")

	out := buf.String()
	assert.Contains(t, out, "session created")
	assert.Contains(t, out, "component=storage")
	assert.Contains(t, out, "session=7")
	assert.Contains(t, out, "error_code=operation_timeout")
}

func TestNopDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", true)
	defer logger.InitWithWriter(&bytes.Buffer{}, "warning", true)

	logger.Nop().Error().Msg("dropped")
	assert.Empty(t, buf.String())
}

package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorRecordsCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Error("connecting to cache", errors.New("refused"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "connecting to cache", entry.Message)
	fields := entry.ContextMap()
	assert.Contains(t, fields["caller"], "log/log_test.go:")
	assert.Equal(t, "refused", fields["error"])
}

func TestInitMirrorsToSink(t *testing.T) {
	var sink bytes.Buffer
	require.NoError(t, Init("info", &sink))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Named("chat").Info("session started", zap.String("session_id", "abc"))
	Named("chat").Debug("dropped below level")

	out := sink.String()
	assert.Contains(t, out, "chat")
	assert.Contains(t, out, "session started")
	assert.Contains(t, out, "abc")
	assert.NotContains(t, out, "dropped below level")
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("loud")
	assert.Error(t, err)
}

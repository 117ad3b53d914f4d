package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/indigo-web/strand/config"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buff bytes.Buffer
		logger, err := New(config.Log{Level: "warn", Format: "json"}, &buff)
		require.NoError(t, err)

		logger.Info("dropped")
		logger.Warn("kept", slog.Int("conn", 42))

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buff.Bytes(), &entry))
		require.Equal(t, "kept", entry["msg"])
		require.Equal(t, "WARN", entry["level"])
		require.EqualValues(t, 42, entry["conn"])
	})

	t.Run("text", func(t *testing.T) {
		var buff bytes.Buffer
		logger, err := New(config.Log{Level: "DEBUG", Format: "text"}, &buff)
		require.NoError(t, err)

		logger.Debug("hello")
		require.Contains(t, buff.String(), "msg=hello")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := New(config.Log{Level: "loud"}, nil)
		require.Error(t, err)

		_, err = New(config.Log{Format: "xml"}, nil)
		require.Error(t, err)
	})
}

func TestContext(t *testing.T) {
	fallback := Discard()
	require.Same(t, fallback, FromContext(context.Background(), fallback))

	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx, fallback))
}

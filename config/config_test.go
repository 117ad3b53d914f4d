package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/indigo-web/strand/http/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoZeroFields(t *testing.T) {
	cfg := Default()

	for _, field := range visit(newVar(*cfg), "Config", false) {
		assert.Fail(t, "zero-value field", field)
	}
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))

	c := Default().Compression
	require.Equal(t, encoding.DefaultPreference, c.Encodings())
	require.Equal(t, encoding.DefaultLevels(), c.Levels())
	require.Equal(t, encoding.DefaultThreshold, c.Options().Threshold)
}

type variable struct {
	Type  reflect.Type
	Value reflect.Value
}

func newVar(a any) variable {
	return variable{reflect.TypeOf(a), reflect.ValueOf(a)}
}

func visit(a variable, name string, nullable bool) (fields []string) {
	if a.Type.Kind() == reflect.Struct {
		for field := range a.Value.NumField() {
			v1 := variable{a.Type.Field(field).Type, a.Value.Field(field)}
			fieldname := a.Type.Field(field).Name
			isNullable := a.Type.Field(field).Tag.Get("test") == "nullable"
			fields = append(fields, visit(v1, name+"."+fieldname, isNullable)...)
		}

		return fields
	}

	if a.Value.IsZero() && !nullable {
		return []string{name}
	}

	return nil
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "strand.yaml", `
compression:
  threshold: 2048
  brotli_level: 5
  preference: [gzip, br]
keepalive:
  timeout: 15s
log:
  level: debug
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, 2048, cfg.Compression.Threshold)
		require.Equal(t, 5, cfg.Compression.BrotliLevel)
		require.Equal(t, []encoding.Encoding{encoding.Gzip, encoding.Brotli}, cfg.Compression.Encodings())
		require.Equal(t, 15*time.Second, cfg.KeepAlive.Timeout)
		require.Equal(t, "debug", cfg.Log.Level)
		// untouched fields keep their defaults
		require.Equal(t, Default().NET, cfg.NET)
		require.True(t, cfg.Compression.Enabled)
	})

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "strand.json", `{
			"compression": {"enabled": false, "gzip_level": 9},
			"clock": {"resolution": "250ms"},
			"net": {"addr": ":9000", "shutdown_timeout": 1000000000}
		}`)

		cfg, err := Load(path)
		require.NoError(t, err)
		require.False(t, cfg.Compression.Enabled)
		require.Equal(t, 9, cfg.Compression.GzipLevel)
		require.Equal(t, 250*time.Millisecond, cfg.Clock.Resolution)
		require.Equal(t, ":9000", cfg.NET.Addr)
		require.Equal(t, time.Second, cfg.NET.ShutdownTimeout)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := Load(writeFile(t, "strand.toml", "a = 1"))
		require.ErrorContains(t, err, "unsupported")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Load(writeFile(t, "strand.json", `{"clock": {"resolution": "fast"}}`))
		require.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Load(writeFile(t, "strand.yml", "keepalive:\n  timeout: 0s\n"))
		var verr ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "keepalive.timeout", verr.Errors[0].Field)
	})
}

func TestEnv(t *testing.T) {
	env := map[string]string{
		"STRAND_COMPRESSION_ENABLED":    "false",
		"STRAND_COMPRESSION_PREFERENCE": "deflate, gzip",
		"STRAND_KEEPALIVE_TIMEOUT":      "1m",
		"STRAND_OFFLOAD_WORKERS":        "3",
		"STRAND_HTTP_MAX_BODY_SIZE":     "1024",
		"STRAND_NET_ADDR":               "localhost:80",
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, lookup))
	require.False(t, cfg.Compression.Enabled)
	require.Equal(t, []string{"deflate", "gzip"}, cfg.Compression.Preference)
	require.Equal(t, time.Minute, cfg.KeepAlive.Timeout)
	require.Equal(t, 3, cfg.Offload.Workers)
	require.Equal(t, int64(1024), cfg.HTTP.MaxBodySize)
	require.Equal(t, "localhost:80", cfg.NET.Addr)

	t.Run("malformed", func(t *testing.T) {
		env := map[string]string{"STRAND_OFFLOAD_QUEUE": "many"}
		err := ApplyEnv(Default(), func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		})
		require.ErrorContains(t, err, "STRAND_OFFLOAD_QUEUE")
	})

	t.Run("process environment", func(t *testing.T) {
		t.Setenv("STRAND_LOG_FORMAT", "text")
		cfg, err := FromEnv()
		require.NoError(t, err)
		require.Equal(t, "text", cfg.Log.Format)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Compression.BrotliLevel = 12
	cfg.Compression.Preference = []string{"zstd"}
	cfg.Clock.Resolution = 2 * cfg.KeepAlive.Timeout
	cfg.Log.Format = "xml"

	err := Validate(cfg)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)

	var fields []string
	for _, fieldErr := range verr.Errors {
		fields = append(fields, fieldErr.Field)
	}

	require.Equal(t, []string{
		"compression.brotli_level",
		"compression.preference",
		"clock.resolution",
		"log.format",
	}, fields)
	require.Contains(t, err.Error(), "4 errors")
}

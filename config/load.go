package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables overriding the configuration, e.g.
// STRAND_KEEPALIVE_TIMEOUT.
const EnvPrefix = "STRAND_"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	// durations are written the same way as in YAML, e.g. "90s". Plain numbers are
	// treated as nanoseconds
	jsoniter.RegisterTypeDecoderFunc("time.Duration", func(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
		if iter.WhatIsNext() != jsoniter.StringValue {
			*(*time.Duration)(ptr) = time.Duration(iter.ReadInt64())
			return
		}

		d, err := time.ParseDuration(iter.ReadString())
		if err != nil {
			iter.ReportError("decode duration", err.Error())
			return
		}

		*(*time.Duration)(ptr) = d
	})
}

// Load reads the configuration file, the format is chosen by the extension: .yaml, .yml
// or .json. Fields missing in the file keep their default values. The environment
// overrides are applied on top, and the result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	return finalize(cfg)
}

// FromEnv returns the default configuration with environment overrides applied.
func FromEnv() (*Config, error) {
	return finalize(Default())
}

func finalize(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides the configuration with values looked up by lookup. Variables are
// named EnvPrefix + SECTION_FIELD.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := envApplier{lookup: lookup}

	e.bool("COMPRESSION_ENABLED", &cfg.Compression.Enabled)
	e.int("COMPRESSION_THRESHOLD", &cfg.Compression.Threshold)
	e.int("COMPRESSION_GZIP_LEVEL", &cfg.Compression.GzipLevel)
	e.int("COMPRESSION_DEFLATE_LEVEL", &cfg.Compression.DeflateLevel)
	e.int("COMPRESSION_BROTLI_LEVEL", &cfg.Compression.BrotliLevel)
	e.list("COMPRESSION_PREFERENCE", &cfg.Compression.Preference)

	e.int("OFFLOAD_WORKERS", &cfg.Offload.Workers)
	e.int("OFFLOAD_QUEUE", &cfg.Offload.Queue)

	e.duration("KEEPALIVE_TIMEOUT", &cfg.KeepAlive.Timeout)
	e.duration("CLOCK_RESOLUTION", &cfg.Clock.Resolution)

	e.int("HTTP_REQUEST_LINE_SIZE", &cfg.HTTP.RequestLineSize)
	e.int("HTTP_HEADERS_NUMBER", &cfg.HTTP.HeadersNumber)
	e.int("HTTP_HEADERS_SIZE", &cfg.HTTP.HeadersSize)
	e.int64("HTTP_MAX_BODY_SIZE", &cfg.HTTP.MaxBodySize)

	e.string("NET_ADDR", &cfg.NET.Addr)
	e.int("NET_READ_BUFFER_SIZE", &cfg.NET.ReadBufferSize)
	e.int("NET_WRITE_BUFFER_SIZE", &cfg.NET.WriteBufferSize)
	e.duration("NET_ACCEPT_LOOP_INTERRUPT_PERIOD", &cfg.NET.AcceptLoopInterruptPeriod)
	e.duration("NET_SHUTDOWN_TIMEOUT", &cfg.NET.ShutdownTimeout)

	e.string("LOG_LEVEL", &cfg.Log.Level)
	e.string("LOG_FORMAT", &cfg.Log.Format)

	e.bool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.string("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	e.string("METRICS_ADDR", &cfg.Metrics.Addr)

	return e.err
}

// envApplier remembers the first malformed variable.
type envApplier struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envApplier) get(name string) (string, bool) {
	value, found := e.lookup(EnvPrefix + name)
	if !found || e.err != nil {
		return "", false
	}

	return strings.TrimSpace(value), true
}

func (e *envApplier) fail(name string, err error) {
	e.err = fmt.Errorf("environment variable %s%s: %w", EnvPrefix, name, err)
}

func (e *envApplier) string(name string, dst *string) {
	if value, ok := e.get(name); ok {
		*dst = value
	}
}

func (e *envApplier) list(name string, dst *[]string) {
	value, ok := e.get(name)
	if !ok {
		return
	}

	var list []string
	for _, elem := range strings.Split(value, ",") {
		if elem = strings.TrimSpace(elem); elem != "" {
			list = append(list, elem)
		}
	}

	*dst = list
}

func (e *envApplier) int(name string, dst *int) {
	if value, ok := e.get(name); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			e.fail(name, err)
			return
		}

		*dst = n
	}
}

func (e *envApplier) int64(name string, dst *int64) {
	if value, ok := e.get(name); ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			e.fail(name, err)
			return
		}

		*dst = n
	}
}

func (e *envApplier) bool(name string, dst *bool) {
	if value, ok := e.get(name); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			e.fail(name, err)
			return
		}

		*dst = b
	}
}

func (e *envApplier) duration(name string, dst *time.Duration) {
	if value, ok := e.get(name); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			e.fail(name, err)
			return
		}

		*dst = d
	}
}

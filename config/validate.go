package config

import (
	"fmt"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/indigo-web/strand/http/encoding"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// FieldError is a validation failure of a single field.
type FieldError struct {
	// Field is the dotted path to the field, e.g. "keepalive.timeout".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError holds all the failures found in the configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return "configuration validation failed: " + e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}

	return sb.String()
}

type validator struct {
	errs []FieldError
}

func (v *validator) check(ok bool, field, format string, args ...any) {
	if !ok {
		v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
}

func (v *validator) positive(n int64, field string) {
	v.check(n > 0, field, "must be positive, got %d", n)
}

// Validate checks the configuration and returns a ValidationError listing every
// malformed field, or nil.
func Validate(cfg *Config) error {
	var v validator

	c := cfg.Compression
	v.positive(int64(c.Threshold), "compression.threshold")
	v.check(c.GzipLevel >= gzip.HuffmanOnly && c.GzipLevel <= gzip.BestCompression,
		"compression.gzip_level", "must be within [%d, %d], got %d", gzip.HuffmanOnly, gzip.BestCompression, c.GzipLevel)
	v.check(c.DeflateLevel >= zlib.HuffmanOnly && c.DeflateLevel <= zlib.BestCompression,
		"compression.deflate_level", "must be within [%d, %d], got %d", zlib.HuffmanOnly, zlib.BestCompression, c.DeflateLevel)
	v.check(c.BrotliLevel >= brotli.BestSpeed && c.BrotliLevel <= brotli.BestCompression,
		"compression.brotli_level", "must be within [%d, %d], got %d", brotli.BestSpeed, brotli.BestCompression, c.BrotliLevel)
	for _, token := range c.Preference {
		enc, ok := encoding.Parse(token)
		v.check(ok && enc.Compresses(), "compression.preference", "unsupported encoding %q", token)
	}

	v.check(cfg.Offload.Workers >= 0, "offload.workers", "must not be negative")
	v.check(cfg.Offload.Queue >= 0, "offload.queue", "must not be negative")

	v.check(cfg.KeepAlive.Timeout > 0, "keepalive.timeout", "must be positive")
	v.check(cfg.Clock.Resolution > 0, "clock.resolution", "must be positive")
	v.check(cfg.Clock.Resolution < cfg.KeepAlive.Timeout, "clock.resolution",
		"must be less than keepalive.timeout (%s)", cfg.KeepAlive.Timeout)

	v.positive(int64(cfg.HTTP.RequestLineSize), "http.request_line_size")
	v.positive(int64(cfg.HTTP.HeadersNumber), "http.headers_number")
	v.positive(int64(cfg.HTTP.HeadersSize), "http.headers_size")
	v.check(cfg.HTTP.MaxBodySize >= 0, "http.max_body_size", "must not be negative")

	v.check(cfg.NET.Addr != "", "net.addr", "must not be empty")
	v.positive(int64(cfg.NET.ReadBufferSize), "net.read_buffer_size")
	v.positive(int64(cfg.NET.WriteBufferSize), "net.write_buffer_size")
	v.check(cfg.NET.AcceptLoopInterruptPeriod > 0, "net.accept_loop_interrupt_period", "must be positive")
	v.check(cfg.NET.ShutdownTimeout > 0, "net.shutdown_timeout", "must be positive")

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		v.check(false, "log.level", "unknown level %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		v.check(false, "log.format", "unknown format %q", cfg.Log.Format)
	}

	if cfg.Metrics.Enabled {
		v.check(cfg.Metrics.Addr != "", "metrics.addr", "must not be empty")
	}

	if len(v.errs) > 0 {
		return ValidationError{Errors: v.errs}
	}

	return nil
}

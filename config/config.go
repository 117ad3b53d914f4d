package config

import (
	"time"

	"github.com/indigo-web/strand/http/encoding"
)

type (
	// Compression controls on-the-fly compression of response bodies.
	Compression struct {
		// Enabled turns the compression on. If disabled, responses are never compressed,
		// regardless of the Accept-Encoding header.
		Enabled bool `yaml:"enabled" json:"enabled" test:"nullable"`
		// Threshold is the chunk length starting from which the compression is offloaded
		// onto the worker pool instead of being done in place.
		Threshold int `yaml:"threshold" json:"threshold"`
		// GzipLevel, DeflateLevel and BrotliLevel are compression levels of the corresponding
		// compressors.
		GzipLevel    int `yaml:"gzip_level" json:"gzip_level"`
		DeflateLevel int `yaml:"deflate_level" json:"deflate_level"`
		BrotliLevel  int `yaml:"brotli_level" json:"brotli_level"`
		// Preference lists content-coding tokens in the order they are picked, when a client
		// accepts several of them equally.
		Preference []string `yaml:"preference" json:"preference"`
	}

	// Offload configures the pool running compression of big chunks.
	Offload struct {
		// Workers defaults to GOMAXPROCS if zero.
		Workers int `yaml:"workers" json:"workers" test:"nullable"`
		// Queue is the number of jobs waiting for a worker before submitting blocks.
		// Defaults to 8 jobs per worker if zero.
		Queue int `yaml:"queue" json:"queue" test:"nullable"`
	}

	KeepAlive struct {
		// Timeout is the maximal duration a connection may stay idle between requests.
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
	}

	Clock struct {
		// Resolution is the frequency the low-resolution clock is refreshed at. Idle
		// connections are closed at most Resolution later than their timeout.
		Resolution time.Duration `yaml:"resolution" json:"resolution"`
	}

	HTTP struct {
		// RequestLineSize limits the length of the request line.
		RequestLineSize int `yaml:"request_line_size" json:"request_line_size"`
		// HeadersNumber limits the number of request headers.
		HeadersNumber int `yaml:"headers_number" json:"headers_number"`
		// HeadersSize limits the amount of memory occupied by request headers.
		HeadersSize int `yaml:"headers_size" json:"headers_size"`
		// MaxBodySize limits bodies of requests. Bigger bodies are rejected.
		MaxBodySize int64 `yaml:"max_body_size" json:"max_body_size"`
	}

	NET struct {
		// Addr is the address the server listens at.
		Addr string `yaml:"addr" json:"addr"`
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket
		ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size"`
		// WriteBufferSize is the initial capacity of the buffer responses are serialized into.
		WriteBufferSize int `yaml:"write_buffer_size" json:"write_buffer_size"`
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop. Defaults to 5 seconds.
		AcceptLoopInterruptPeriod time.Duration `yaml:"accept_loop_interrupt_period" json:"accept_loop_interrupt_period"`
		// ShutdownTimeout limits the graceful shutdown.
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	}

	Log struct {
		// Level is one of debug, info, warn or error.
		Level string `yaml:"level" json:"level"`
		// Format is either json or text.
		Format string `yaml:"format" json:"format"`
	}

	Metrics struct {
		Enabled bool `yaml:"enabled" json:"enabled" test:"nullable"`
		// Namespace prefixes every exported metric.
		Namespace string `yaml:"namespace" json:"namespace"`
		// Addr is the address the metrics are exposed at.
		Addr string `yaml:"addr" json:"addr"`
	}
)

// Config holds settings of the server.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	Compression Compression `yaml:"compression" json:"compression"`
	Offload     Offload     `yaml:"offload" json:"offload"`
	KeepAlive   KeepAlive   `yaml:"keepalive" json:"keepalive"`
	Clock       Clock       `yaml:"clock" json:"clock"`
	HTTP        HTTP        `yaml:"http" json:"http"`
	NET         NET         `yaml:"net" json:"net"`
	Log         Log         `yaml:"log" json:"log"`
	Metrics     Metrics     `yaml:"metrics" json:"metrics"`
}

// Default returns default config. Those are initially well-balanced, however maximal defaults
// are pretty permitting.
func Default() *Config {
	levels := encoding.DefaultLevels()

	return &Config{
		Compression: Compression{
			Enabled:      true,
			Threshold:    encoding.DefaultThreshold,
			GzipLevel:    levels.Gzip,
			DeflateLevel: levels.Deflate,
			BrotliLevel:  levels.Brotli,
			Preference:   tokens(encoding.DefaultPreference),
		},
		Offload: Offload{},
		KeepAlive: KeepAlive{
			Timeout: 90 * time.Second,
		},
		Clock: Clock{
			Resolution: 500 * time.Millisecond,
		},
		HTTP: HTTP{
			// allow at most 16kb of request line, which is effectively pretty much tolerant,
			// considering most web-entities limit it to 4-8kb.
			RequestLineSize: 16 * 1024,
			HeadersNumber:   50,
			HeadersSize:     16 * 1024,
			MaxBodySize:     16 * 1024 * 1024,
		},
		NET: NET{
			Addr:                      ":8080",
			ReadBufferSize:            4 * 1024,
			WriteBufferSize:           4 * 1024,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			ShutdownTimeout:           30 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Namespace: "strand",
			Addr:      ":9090",
		},
	}
}

// Levels returns the compression levels.
func (c Compression) Levels() encoding.Levels {
	return encoding.Levels{
		Gzip:    c.GzipLevel,
		Deflate: c.DeflateLevel,
		Brotli:  c.BrotliLevel,
	}
}

// Encodings parses the preference list. Unknown and non-compressing tokens are skipped.
func (c Compression) Encodings() []encoding.Encoding {
	encs := make([]encoding.Encoding, 0, len(c.Preference))
	for _, token := range c.Preference {
		if enc, ok := encoding.Parse(token); ok && enc.Compresses() {
			encs = append(encs, enc)
		}
	}

	return encs
}

// Options returns the encoder options, except the runtime collaborators.
func (c Compression) Options() encoding.Options {
	return encoding.Options{
		Threshold: c.Threshold,
		Levels:    c.Levels(),
	}
}

func tokens(encs []encoding.Encoding) []string {
	toks := make([]string, len(encs))
	for i, enc := range encs {
		toks[i] = enc.Token()
	}

	return toks
}

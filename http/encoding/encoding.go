// Package encoding implements on-the-fly compression of response bodies.
//
// A response body negotiated for compression is wrapped by an Encoder, which compresses
// chunks of the inner stream as they are produced. Small chunks are compressed right on
// the calling goroutine, whereas big ones are handed over to an offload.Pool, so the
// connection goroutine is never stuck behind a long compression run for longer than it
// waits for the result.
package encoding

import (
	"strings"

	"github.com/indigo-web/strand/internal/strutil"
	"github.com/indigo-web/utils/strcomp"
)

// Encoding selects a content coding.
type Encoding uint8

const (
	Identity Encoding = iota
	Gzip
	Deflate
	Brotli
	// Auto leaves the choice to the server. It never triggers compression by itself.
	Auto
)

// Token returns the content-coding token, as it appears in Content-Encoding and
// Accept-Encoding headers. Auto has no token.
func (e Encoding) Token() string {
	switch e {
	case Identity:
		return "identity"
	case Gzip:
		return "gzip"
	case Deflate:
		return "deflate"
	case Brotli:
		return "br"
	default:
		return ""
	}
}

func (e Encoding) String() string {
	if e == Auto {
		return "auto"
	}

	return e.Token()
}

// Compresses reports whether the encoding is backed by an actual compressor.
func (e Encoding) Compresses() bool {
	switch e {
	case Gzip, Deflate, Brotli:
		return true
	default:
		return false
	}
}

// Parse maps a content-coding token onto the encoding. Tokens are case-insensitive.
func Parse(token string) (Encoding, bool) {
	switch {
	case strcomp.EqualFold(token, "gzip"), strcomp.EqualFold(token, "x-gzip"):
		return Gzip, true
	case strcomp.EqualFold(token, "deflate"):
		return Deflate, true
	case strcomp.EqualFold(token, "br"):
		return Brotli, true
	case strcomp.EqualFold(token, "identity"):
		return Identity, true
	default:
		return Identity, false
	}
}

// DefaultPreference is the order in which encodings are picked when the client
// accepts several of them with the same quality.
var DefaultPreference = []Encoding{Brotli, Gzip, Deflate}

// Negotiate picks the encoding for a response out of the Accept-Encoding header value.
// The encoding with the highest quality wins, ties are resolved by the order of
// preference. Encodings excluded with q=0 are never picked. Identity is returned if
// no compressing encoding is acceptable.
func Negotiate(acceptEncoding string, preference ...Encoding) Encoding {
	if len(preference) == 0 {
		preference = DefaultPreference
	}

	var (
		qualities [Auto]float64
		listed    [Auto]bool
		wildcard  = -1.0
	)

	for elem := range strutil.List(acceptEncoding) {
		token, params := strutil.CutHeader(elem)
		q := strutil.Quality(params)

		if token == "*" {
			wildcard = q
			continue
		}

		if enc, ok := Parse(token); ok {
			qualities[enc], listed[enc] = q, true
		}
	}

	best, bestQ := Identity, 0.0
	for _, enc := range preference {
		if !enc.Compresses() {
			continue
		}

		q := qualities[enc]
		if !listed[enc] {
			if wildcard < 0 {
				continue
			}

			q = wildcard
		}

		if q > bestQ {
			best, bestQ = enc, q
		}
	}

	return best
}

// AcceptEncoding renders the encodings into an Accept-Encoding header value.
func AcceptEncoding(encodings ...Encoding) string {
	if len(encodings) == 0 {
		return Identity.Token()
	}

	tokens := make([]string, 0, len(encodings))
	for _, enc := range encodings {
		if token := enc.Token(); token != "" {
			tokens = append(tokens, token)
		}
	}

	return strings.Join(tokens, ", ")
}

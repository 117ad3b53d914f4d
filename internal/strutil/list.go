package strutil

import (
	"iter"
	"strconv"
	"strings"
)

// List iterates over elements of a comma-separated header value, skipping empty ones.
func List(header string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for len(header) > 0 {
			var elem string
			elem, header, _ = strings.Cut(header, ",")
			if elem = StripWS(elem); len(elem) == 0 {
				continue
			}

			if !yield(elem) {
				return
			}
		}
	}
}

// Quality extracts the q parameter out of the header parameters. Missing or malformed
// values are treated as 1.
func Quality(params string) float64 {
	for params != "" {
		var param string
		param, params, _ = strings.Cut(params, ";")
		key, value, found := strings.Cut(StripWS(param), "=")
		if !found || !strings.EqualFold(StripWS(key), "q") {
			continue
		}

		q, err := strconv.ParseFloat(StripWS(value), 64)
		if err != nil || q < 0 || q > 1 {
			return 1
		}

		return q
	}

	return 1
}

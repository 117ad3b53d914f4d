package http1

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/server/tcp/dummy"
	"github.com/stretchr/testify/require"
)

func readRequest(t *testing.T, reader *Reader) *http.Request {
	req := http.NewRequest(nil)
	require.NoError(t, reader.Read(req))

	return req
}

func readBody(t *testing.T, req *http.Request) string {
	data, err := body.ReadAll(context.Background(), &req.Body)
	require.NoError(t, err)

	return string(data)
}

func TestReader(t *testing.T) {
	cfg := config.Default().HTTP

	t.Run("simple GET", func(t *testing.T) {
		client := dummy.Strings("GET / HTTP/1.1\r\nHost: localhost\r\nAccept-Encoding:  gzip, br \r\n\r\n")
		req := readRequest(t, NewReader(client, cfg))

		require.Equal(t, "GET", req.Method)
		require.Equal(t, "/", req.Path)
		require.Equal(t, http.HTTP11, req.Proto)
		require.Equal(t, "localhost", req.Headers.Value("host"))
		require.Equal(t, "gzip, br", req.Headers.Value("Accept-Encoding"))
		require.Equal(t, body.KindNoBody, req.Body.Kind())
	})

	t.Run("split terminator", func(t *testing.T) {
		client := dummy.Strings("GET /split HTTP/1.0\r\nConnection: keep-alive\r", "\n\r", "\n")
		req := readRequest(t, NewReader(client, cfg))

		require.Equal(t, "/split", req.Path)
		require.Equal(t, http.HTTP10, req.Proto)
		require.True(t, req.KeepAlive())
	})

	t.Run("pipelined with bodies", func(t *testing.T) {
		client := dummy.Strings(
			"POST /a HTTP/1.1\r\nContent-Length: 13\r\n\r\nHello, world!" +
				"POST /b HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nd\r\nHello, world!\r\n0\r\n\r\n" +
				"GET /c HTTP/1.1\r\n\r\n",
		)
		reader := NewReader(client, cfg)

		req := readRequest(t, reader)
		require.Equal(t, "/a", req.Path)
		require.Equal(t, body.Sized(13), req.Body.Size())
		require.Equal(t, "Hello, world!", readBody(t, req))

		req = readRequest(t, reader)
		require.Equal(t, "/b", req.Path)
		require.Equal(t, body.SizeStream, req.Body.Size())
		require.Equal(t, "Hello, world!", readBody(t, req))

		req = readRequest(t, reader)
		require.Equal(t, "/c", req.Path)

		_, err := reader.client.Read()
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("body in pieces", func(t *testing.T) {
		client := dummy.Strings("PUT / HTTP/1.1\r\nContent-Length: 10\r\n\r\n01234", "567", "89GET")
		reader := NewReader(client, cfg)
		req := readRequest(t, reader)
		require.Equal(t, "0123456789", readBody(t, req))

		data, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "GET", string(data))
	})

	t.Run("discard unread body", func(t *testing.T) {
		client := dummy.Strings(
			"POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n", "hello",
			"GET /next HTTP/1.1\r\n\r\n",
		)
		reader := NewReader(client, cfg)
		readRequest(t, reader)
		require.NoError(t, reader.Discard())

		req := readRequest(t, reader)
		require.Equal(t, "/next", req.Path)
		require.NoError(t, reader.Discard())
	})

	t.Run("empty body", func(t *testing.T) {
		client := dummy.Strings("POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
		req := readRequest(t, NewReader(client, cfg))
		require.Equal(t, body.KindEmptyBody, req.Body.Kind())
	})

	t.Run("unexpected end of body", func(t *testing.T) {
		client := dummy.Strings("POST / HTTP/1.1\r\nContent-Length: 50\r\n\r\nshort")
		req := readRequest(t, NewReader(client, cfg))
		_, err := body.ReadAll(context.Background(), &req.Body)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestReaderErrors(t *testing.T) {
	cfg := config.Default().HTTP
	cfg.RequestLineSize = 64
	cfg.HeadersNumber = 3
	cfg.HeadersSize = 128
	cfg.MaxBodySize = 16

	cases := []struct {
		Name    string
		Request string
		Err     error
	}{
		{Name: "no path", Request: "GET\r\n\r\n", Err: status.ErrBadRequest},
		{Name: "no proto", Request: "GET /\r\n\r\n", Err: status.ErrBadRequest},
		{Name: "garbage proto", Request: "GET / HTTPS\r\n\r\n", Err: status.ErrBadRequest},
		{Name: "unsupported proto", Request: "GET / HTTP/2.0\r\n\r\n", Err: status.ErrHTTPVersionNotSupported},
		{Name: "malformed header", Request: "GET / HTTP/1.1\r\nHost\r\n\r\n", Err: status.ErrBadRequest},
		{Name: "space before colon", Request: "GET / HTTP/1.1\r\nHost : x\r\n\r\n", Err: status.ErrBadRequest},
		{
			Name:    "too long request line",
			Request: "GET /" + strings.Repeat("a", 300) + " HTTP/1.1\r\n\r\n",
			Err:     status.ErrTooLongRequestLine,
		},
		{
			Name:    "too many headers",
			Request: "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\nD: 4\r\n\r\n",
			Err:     status.ErrHeaderFieldsTooLarge,
		},
		{
			Name:    "too large headers",
			Request: "GET / HTTP/1.1\r\nCookie: " + strings.Repeat("a", 150) + "\r\n\r\n",
			Err:     status.ErrHeaderFieldsTooLarge,
		},
		{Name: "malformed length", Request: "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", Err: status.ErrBadRequest},
		{Name: "too large body", Request: "POST / HTTP/1.1\r\nContent-Length: 17\r\n\r\n", Err: status.ErrBodyTooLarge},
		{
			Name:    "unsupported encoding",
			Request: "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n",
			Err:     status.ErrUnsupportedEncoding,
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			reader := NewReader(dummy.Strings(tc.Request), cfg)
			require.ErrorIs(t, reader.Read(http.NewRequest(nil)), tc.Err)
		})
	}

	t.Run("too large chunked body", func(t *testing.T) {
		client := dummy.Strings("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n11\r\n" + strings.Repeat("a", 17) + "\r\n0\r\n\r\n")
		req := readRequest(t, NewReader(client, cfg))
		_, err := body.ReadAll(context.Background(), &req.Body)
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
	})

	t.Run("timeouts", func(t *testing.T) {
		client := dummy.Strings()
		client.Err = os.ErrDeadlineExceeded
		require.ErrorIs(t, NewReader(client, cfg).Read(http.NewRequest(nil)), os.ErrDeadlineExceeded)

		client = dummy.Strings("GET / HTTP/1.1\r\n")
		client.Err = os.ErrDeadlineExceeded
		require.ErrorIs(t, NewReader(client, cfg).Read(http.NewRequest(nil)), status.ErrRequestTimeout)
	})

	t.Run("connection closed", func(t *testing.T) {
		require.ErrorIs(t, NewReader(dummy.Strings(), cfg).Read(http.NewRequest(nil)), io.EOF)
		require.ErrorIs(t, NewReader(dummy.Strings("GET / HT"), cfg).Read(http.NewRequest(nil)), io.ErrUnexpectedEOF)
	})
}

package http1

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/server/tcp/dummy"
	"github.com/stretchr/testify/require"
)

type writeCounter struct {
	dummy.Client
	writes int
}

func (w *writeCounter) Write(b []byte) error {
	w.writes++
	return w.Client.Write(b)
}

func serialize(
	t *testing.T, proto, method string, head *http.ResponseHead, b body.Body, keepAlive bool,
) (string, error) {
	client := dummy.NewClient()
	err := NewSerializer(client, 128).Write(context.Background(), proto, method, head, &b, keepAlive)

	return string(client.Written), err
}

func splitResponse(t *testing.T, response string) (head, payload string) {
	head, payload, found := strings.Cut(response, "\r\n\r\n")
	require.True(t, found, "no head terminator")

	return head + "\r\n", payload
}

func dechunk(t *testing.T, data string) string {
	parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
	raw := []byte(data)

	var payload []byte
	for len(raw) > 0 {
		chunk, extra, err := parser.Parse(raw, false)
		payload = append(payload, chunk...)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			require.Empty(t, extra)
			break
		}

		raw = extra
	}

	return string(payload)
}

func TestSerializer(t *testing.T) {
	t.Run("sized body", func(t *testing.T) {
		head := http.NewResponseHead(status.OK)
		head.Headers.Add("Content-Type", "text/plain")
		head.Headers.Add("Content-Length", "1000")

		response, err := serialize(t, http.HTTP11, "GET", head, body.String("Hello, world!"), true)
		require.NoError(t, err)
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 13\r\n\r\nHello, world!",
			response,
		)
	})

	t.Run("stream body", func(t *testing.T) {
		head := http.NewResponseHead(status.Created)
		stream := body.Chunks([]byte("Hello"), nil, []byte(", "), []byte("world!"))

		response, err := serialize(t, http.HTTP11, "POST", head, body.Message(stream), true)
		require.NoError(t, err)

		headers, payload := splitResponse(t, response)
		require.Equal(t, "HTTP/1.1 201 Created\r\nTransfer-Encoding: chunked\r\n", headers)
		require.Equal(t, "Hello, world!", dechunk(t, payload))
		// the empty chunk in between must not terminate the body
		require.Equal(t, 1, strings.Count(payload, "0\r\n\r\n"))
	})

	t.Run("forced chunked", func(t *testing.T) {
		head := http.NewResponseHead(status.OK)
		head.ForceChunked()

		response, err := serialize(t, http.HTTP11, "GET", head, body.String("Hello, world!"), true)
		require.NoError(t, err)
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nd\r\nHello, world!\r\n0\r\n\r\n",
			response,
		)
	})

	t.Run("empty body", func(t *testing.T) {
		response, err := serialize(t, http.HTTP11, "GET", http.NewResponseHead(status.OK), body.Empty(), true)
		require.NoError(t, err)
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n", response)
	})

	t.Run("HEAD", func(t *testing.T) {
		response, err := serialize(t, http.HTTP11, "HEAD", http.NewResponseHead(status.OK), body.String("hello"), true)
		require.NoError(t, err)
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n", response)
	})

	t.Run("no content", func(t *testing.T) {
		response, err := serialize(
			t, http.HTTP11, "GET", http.NewResponseHead(status.NoContent), body.String("ignored"), true,
		)
		require.NoError(t, err)
		require.Equal(t, "HTTP/1.1 204 No Content\r\n\r\n", response)
	})

	t.Run("connection close", func(t *testing.T) {
		head := http.NewResponseHead(status.OK)
		head.Headers.Add("Connection", "keep-alive")

		response, err := serialize(t, http.HTTP11, "GET", head, body.String("bye"), false)
		require.NoError(t, err)
		require.Equal(t, "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 3\r\n\r\nbye", response)
	})

	t.Run("HTTP/1.0 stream", func(t *testing.T) {
		stream := body.Chunks([]byte("Hello, "), []byte("world!"))

		response, err := serialize(t, http.HTTP10, "GET", http.NewResponseHead(status.OK), body.Message(stream), true)
		require.ErrorIs(t, err, ErrCloseConnection)
		require.Equal(t, "HTTP/1.0 200 OK\r\nConnection: close\r\n\r\nHello, world!", response)
	})

	t.Run("length mismatch", func(t *testing.T) {
		stream := body.FromReader(strings.NewReader("short"), body.Sized(10), 0)

		_, err := serialize(t, http.HTTP11, "GET", http.NewResponseHead(status.OK), body.Message(stream), true)
		require.ErrorIs(t, err, ErrLengthMismatch)
	})

	t.Run("failing body", func(t *testing.T) {
		fail := errors.New("disk is on fire")
		stream := body.FromReader(io.MultiReader(strings.NewReader("partial"), failingReader{fail}), body.SizeStream, 0)

		_, err := serialize(t, http.HTTP11, "GET", http.NewResponseHead(status.OK), body.Message(stream), true)
		require.ErrorIs(t, err, fail)
	})

	t.Run("big chunks bypass the buffer", func(t *testing.T) {
		client := &writeCounter{Client: *dummy.NewClient()}
		serializer := NewSerializer(client, 64)
		big := strings.Repeat("a", 1000)
		b := body.Message(body.Chunks([]byte(big), []byte("tail")))

		err := serializer.Write(context.Background(), http.HTTP11, "GET", http.NewResponseHead(status.OK), &b, true)
		require.NoError(t, err)

		_, payload := splitResponse(t, string(client.Written))
		require.Equal(t, big+"tail", dechunk(t, payload))
		// head with the chunk size, the big chunk itself and the rest
		require.Equal(t, 3, client.writes)
	})

	t.Run("reuse", func(t *testing.T) {
		client := dummy.NewClient()
		serializer := NewSerializer(client, 128)
		for range 2 {
			b := body.String("ok")
			err := serializer.Write(
				context.Background(), http.HTTP11, "GET", http.NewResponseHead(status.OK), &b, true,
			)
			require.NoError(t, err)
		}

		want := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
		require.Equal(t, want+want, string(client.Written))
	})
}

type failingReader struct {
	err error
}

func (f failingReader) Read([]byte) (int, error) {
	return 0, f.err
}

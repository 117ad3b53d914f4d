package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/logging"
	"github.com/indigo-web/strand/service"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	paragraph     = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.\n"
	maxParagraphs = 100_000
	// paragraphs per chunk of /lorem, so the chunks end up above the offload threshold
	paragraphsPerChunk = 64
)

// demo serves a handful of endpoints producing bodies of every kind: small in-memory
// ones, echoed request bodies and long streams.
func demo(fallback *slog.Logger) service.Factory[net.Addr, *http.Request, *http.Response] {
	return service.Shared[net.Addr](service.Func[*http.Request, *http.Response](
		func(ctx context.Context, req *http.Request) (*http.Response, error) {
			path, rawQuery, _ := strings.Cut(req.Path, "?")
			logging.FromContext(ctx, fallback).Debug("request",
				slog.String("method", req.Method),
				slog.String("path", path),
			)

			switch path {
			case "/":
				return http.Respond(status.OK, "Hello, world!"), nil
			case "/health":
				return http.NewResponse().Code(status.NoContent), nil
			case "/echo":
				return echo(ctx, req)
			case "/json":
				return reformat(ctx, req)
			case "/lorem":
				return lorem(rawQuery)
			default:
				return http.Respond(status.NotFound, fmt.Sprintf("%s not found", path)), nil
			}
		},
	))
}

func echo(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Method != "POST" && req.Method != "PUT" {
		return http.Respond(status.MethodNotAllowed, "use POST or PUT"), nil
	}

	data, err := body.ReadAll(ctx, &req.Body)
	if err != nil {
		return nil, err
	}

	resp := http.NewResponse().Bytes(data)
	if contentType := req.Headers.Value("Content-Type"); contentType != "" {
		resp.Header("Content-Type", contentType)
	}

	return resp, nil
}

// reformat decodes a JSON document straight off the request body and returns it indented.
func reformat(ctx context.Context, req *http.Request) (*http.Response, error) {
	var doc any
	if err := json.NewDecoder(body.NewReader(ctx, &req.Body)).Decode(&doc); err != nil {
		return http.Respond(status.BadRequest, "malformed JSON: "+err.Error()), nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	return http.NewResponse().
		Header("Content-Type", "application/json").
		Bytes(data), nil
}

// lorem streams ?n= paragraphs of text.
func lorem(rawQuery string) (*http.Response, error) {
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, status.ErrBadRequest
	}

	n := 10
	if value := query.Get("n"); value != "" {
		n, err = strconv.Atoi(value)
		if err != nil || n < 0 || n > maxParagraphs {
			return http.Respond(status.BadRequest, "n must be within [0, 100000]"), nil
		}
	}

	return http.NewResponse().
		Header("Content-Type", "text/plain; charset=utf-8").
		Stream(&paragraphs{left: n}), nil
}

type paragraphs struct {
	left  int
	chunk []byte
}

func (p *paragraphs) Size() body.Size {
	return body.SizeStream
}

func (p *paragraphs) Fetch(context.Context) ([]byte, error) {
	if p.left == 0 {
		return nil, io.EOF
	}

	count := min(p.left, paragraphsPerChunk)
	p.left -= count
	p.chunk = p.chunk[:0]
	for range count {
		p.chunk = append(p.chunk, paragraph...)
	}

	return p.chunk, nil
}

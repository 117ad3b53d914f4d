package http1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/clock"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/encoding"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/logging"
	"github.com/indigo-web/strand/internal/server/tcp"
	"github.com/indigo-web/strand/keepalive"
	"github.com/indigo-web/strand/service"
)

const connIDLength = 12

// Factory instantiates the application service for every connection, passing it the
// remote address.
type Factory = service.Factory[net.Addr, *http.Request, *http.Response]

// Observer is notified about connections and served requests. Must be safe for
// concurrent use.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	RequestServed(code uint16)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()    {}
func (nopObserver) ConnectionClosed()    {}
func (nopObserver) RequestServed(uint16) {}

type Options struct {
	Config *config.Config
	Clock  clock.Clock
	// Encoding holds the encoders options. Threshold and Levels are taken from the
	// Config if left zero.
	Encoding  encoding.Options
	KeepAlive keepalive.Observer
	Observer  Observer
	Logger    *slog.Logger
}

// Dispatcher serves HTTP/1 connections.
type Dispatcher struct {
	app        Factory
	keepalive  keepalive.KeepAlive[net.Addr, *http.Request]
	cfg        *config.Config
	clock      clock.Clock
	encoding   encoding.Options
	preference []encoding.Encoding
	observer   Observer
	logger     *slog.Logger
	// ownClock is set when the clock was created by the dispatcher itself
	ownClock *clock.LowRes
}

// NewDispatcher returns a dispatcher serving the app. If no clock is passed, the
// dispatcher runs its own one, which is stopped by Close.
func NewDispatcher(app Factory, opts Options) *Dispatcher {
	if opts.Config == nil {
		opts.Config = config.Default()
	}

	var ownClock *clock.LowRes
	if opts.Clock == nil {
		ownClock = clock.NewLowRes(opts.Config.Clock.Resolution)
		opts.Clock = ownClock
	}

	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	compression := opts.Config.Compression
	if opts.Encoding.Threshold == 0 {
		opts.Encoding.Threshold = compression.Threshold
	}

	if opts.Encoding.Levels == (encoding.Levels{}) {
		opts.Encoding.Levels = compression.Levels()
	}

	if opts.Encoding.Logger == nil {
		opts.Encoding.Logger = opts.Logger
	}

	var preference []encoding.Encoding
	if compression.Enabled {
		preference = compression.Encodings()
	}

	return &Dispatcher{
		app: app,
		keepalive: keepalive.New[net.Addr, *http.Request](opts.Config.KeepAlive.Timeout, opts.Clock, nil).
			Observe(opts.KeepAlive).
			Log(opts.Logger),
		cfg:        opts.Config,
		clock:      opts.Clock,
		encoding:   opts.Encoding,
		preference: preference,
		observer:   opts.Observer,
		logger:     opts.Logger,
		ownClock:   ownClock,
	}
}

// Close releases the resources owned by the dispatcher. Connections being served
// aren't affected, however their timeouts become imprecise.
func (d *Dispatcher) Close() {
	if d.ownClock != nil {
		d.ownClock.Close()
	}
}

// Serve serves the connection until it's closed, times out or ctx is done. Matches
// the tcp.OnConn signature.
func (d *Dispatcher) Serve(ctx context.Context, conn net.Conn) {
	d.observer.ConnectionOpened()
	defer d.observer.ConnectionClosed()

	logger := d.logger.With(
		slog.String("conn", uniuri.NewLen(connIDLength)),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	client := tcp.NewClient(conn, make([]byte, d.cfg.NET.ReadBufferSize))
	err := d.serve(logging.WithLogger(ctx, logger), client, logger)

	switch {
	case err == nil:
		logger.Debug("connection closed")
	case errors.Is(err, keepalive.ErrTimeout):
		logger.Debug("connection idle for too long")
	default:
		logger.Info("connection closed with error", slog.Any("error", err))
	}
}

func (d *Dispatcher) serve(ctx context.Context, client tcp.Client, logger *slog.Logger) error {
	guard := d.keepalive.Guard()
	defer guard.Close()

	app, err := d.app.NewService(ctx, client.Remote())
	if err != nil {
		return fmt.Errorf("instantiate service: %w", err)
	}

	svc := service.Then[*http.Request, *http.Request, *http.Response](guard, app)
	reader := NewReader(client, d.cfg.HTTP)
	serializer := NewSerializer(client, d.cfg.NET.WriteBufferSize)
	req := http.NewRequest(client.Remote())
	// once a request is taken, its response is produced entirely, even if the server
	// is shutting down meanwhile
	writeCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err = svc.Ready(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		client.SetReadDeadline(guard.Deadline())
		req.Clear()

		switch err = reader.Read(req); {
		case err == nil:
		case tcp.IsTimeout(err):
			// no request came in time. Wait for the guard to expire and report
			// it on the next round
			if err = guard.Wait(ctx); err != nil && ctx.Err() != nil {
				return nil
			}

			continue
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return nil
		default:
			var httpErr status.HTTPError
			if errors.As(err, &httpErr) {
				_ = d.respond(writeCtx, serializer, req, http.Error(err), false)
			}

			return err
		}

		client.SetReadDeadline(d.clock.Now().Add(d.keepalive.Duration()))

		resp, err := svc.Call(ctx, req)
		if err != nil {
			logger.Warn("request handling failed",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Any("error", err),
			)
			resp = http.Error(err)
		}

		keepAlive := req.KeepAlive() && ctx.Err() == nil
		if err = d.respond(writeCtx, serializer, req, resp, keepAlive); err != nil {
			if errors.Is(err, ErrCloseConnection) {
				return nil
			}

			return err
		}

		if !keepAlive {
			return nil
		}

		if err = reader.Discard(); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) respond(
	ctx context.Context, serializer *Serializer, req *http.Request, resp *http.Response, keepAlive bool,
) error {
	enc := encoding.Identity
	if len(d.preference) > 0 {
		enc = encoding.Negotiate(req.Headers.Value("Accept-Encoding"), d.preference...)
	}

	rb := encoding.Response(enc, resp.Head, body.Other[body.Stream](resp.Body), d.encoding)
	if encoder, ok := rb.Typed(); ok && encoder.Encoding() != encoding.Identity {
		resp.Head.Headers.Add("Vary", "Accept-Encoding")
	}

	err := serializer.Write(ctx, req.Proto, req.Method, resp.Head, &rb, keepAlive)
	d.observer.RequestServed(uint16(resp.Head.Code))

	return err
}

package tcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/strand/clock"
)

// ErrShutdown is returned by Serve after the server was stopped.
var ErrShutdown = errors.New("server is shut down")

// OnConn serves a single connection. The context is canceled once the server starts
// shutting down, so the connection must be closed at the first idle point. The
// connection is closed by the server after OnConn returns.
type OnConn func(ctx context.Context, conn net.Conn)

type Options struct {
	// AcceptLoopInterruptPeriod controls how often the Accept() call is interrupted in
	// order to check whether it's time to stop.
	AcceptLoopInterruptPeriod time.Duration
	Clock                     clock.Clock
	Logger                    *slog.Logger
}

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

type Server struct {
	sock      net.Listener
	onConn    OnConn
	interrupt time.Duration
	clock     clock.Clock
	ownClock  *clock.LowRes
	logger    *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown atomic.Bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
}

func NewServer(sock net.Listener, onConn OnConn, opts Options) *Server {
	var ownClock *clock.LowRes
	if opts.Clock == nil {
		ownClock = clock.NewLowRes(clock.DefaultResolution)
		opts.Clock = ownClock
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		sock:      sock,
		onConn:    onConn,
		interrupt: opts.AcceptLoopInterruptPeriod,
		clock:     opts.Clock,
		ownClock:  ownClock,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Addr returns the address the server listens at.
func (s *Server) Addr() net.Addr {
	return s.sock.Addr()
}

// Serve accepts connections until the server is stopped. Returns ErrShutdown after all
// the connections are served.
func (s *Server) Serve() error {
	l, interruptible := s.sock.(listener)
	interruptible = interruptible && s.interrupt > 0

	for !s.shutdown.Load() {
		if interruptible {
			if err := l.SetDeadline(s.clock.Now().Add(s.interrupt)); err != nil {
				return s.exit(err)
			}
		}

		conn, err := s.sock.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			return s.exit(err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			break
		}

		s.wg.Add(1)
		go s.handle(conn)
	}

	return s.exit(nil)
}

func (s *Server) exit(err error) error {
	if s.shutdown.Load() {
		s.wg.Wait()
		return ErrShutdown
	}

	return err
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	s.onConn(s.ctx, conn)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown.Load() {
		return false
	}

	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("failed to close connection", slog.Any("error", err))
	}
}

func (s *Server) stopListener() error {
	s.mu.Lock()
	s.shutdown.Store(true)
	s.mu.Unlock()
	s.cancel()

	if s.ownClock != nil {
		s.ownClock.Close()
	}

	if err := s.sock.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// Stop shuts listener and ALL the connections down
func (s *Server) Stop() error {
	err := s.stopListener()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	return err
}

// GracefulShutdown stops the listener and lets the connections finish the requests
// they are processing. Idle connections are interrupted right away. Once ctx is done,
// the remaining connections are closed forcefully.
func (s *Server) GracefulShutdown(ctx context.Context) error {
	if err := s.stopListener(); err != nil {
		return err
	}

	s.mu.Lock()
	for conn := range s.conns {
		// wakes up connections blocked on reading the next request
		_ = conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = s.Stop()
		return ctx.Err()
	}
}

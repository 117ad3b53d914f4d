package strand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/indigo-web/strand/clock"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http/encoding"
	"github.com/indigo-web/strand/internal/logging"
	"github.com/indigo-web/strand/internal/server/http1"
	"github.com/indigo-web/strand/internal/server/tcp"
	"github.com/indigo-web/strand/metrics"
	"github.com/indigo-web/strand/offload"
)

// ListenerFactory opens a listening socket. net.Listen fits the signature.
type ListenerFactory func(network, addr string) (net.Listener, error)

type Listener struct {
	Addr    string
	Factory ListenerFactory
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}

// App wires the connection servers, the offload pool, the clock and the keep-alive
// guards together and serves the application on every listener.
type App struct {
	cfg       *config.Config
	listeners []Listener
	hooks     hooks
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     clock.Clock

	mu      sync.Mutex
	servers []*tcp.Server
	stop    chan struct{}
	stopped sync.Once
}

// New returns a new App. The default configuration is used if cfg is nil.
func New(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}

	return &App{
		cfg:    cfg,
		logger: logging.Discard(),
		stop:   make(chan struct{}),
	}
}

func (a *App) Logger(logger *slog.Logger) *App {
	a.logger = logger
	return a
}

// Metrics makes every component report to m.
func (a *App) Metrics(m *metrics.Metrics) *App {
	a.metrics = m
	return a
}

// Clock replaces the low-resolution clock, which is otherwise created with the configured
// resolution.
func (a *App) Clock(clk clock.Clock) *App {
	a.clock = clk
	return a
}

// NotifyOnStart calls the callback once all the listeners are open. The servers might
// not be accepting yet at that moment.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback once all the servers are down and every connection
// is closed.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds a new listener. net.Listen is used unless a factory is passed.
func (a *App) Listen(addr string, factory ...ListenerFactory) *App {
	f := ListenerFactory(net.Listen)
	if len(factory) > 0 && factory[0] != nil {
		f = factory[0]
	}

	a.listeners = append(a.listeners, Listener{Addr: addr, Factory: f})
	return a
}

// Addrs returns the addresses of the running servers, in the order of listeners.
func (a *App) Addrs() []net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	addrs := make([]net.Addr, len(a.servers))
	for i, server := range a.servers {
		addrs[i] = server.Addr()
	}

	return addrs
}

// Serve serves the application on every listener until ctx is done or Stop is called.
// In the former case, the servers shut down gracefully: the requests being processed are
// answered within the configured shutdown timeout. If no listeners were added, the
// configured address is used.
func (a *App) Serve(ctx context.Context, app http1.Factory) error {
	if err := config.Validate(a.cfg); err != nil {
		return err
	}

	if len(a.listeners) == 0 {
		a.Listen(a.cfg.NET.Addr)
	}

	clk := a.clock
	if clk == nil {
		lowres := clock.NewLowRes(a.cfg.Clock.Resolution)
		defer lowres.Close()
		clk = lowres
	}

	pool := offload.NewPool(offload.Options{
		Workers:  a.cfg.Offload.Workers,
		Queue:    a.cfg.Offload.Queue,
		Logger:   a.logger,
		Observer: a.jobObserver(),
	})
	defer pool.Close()

	dispatcher := http1.NewDispatcher(app, a.dispatcherOptions(clk, pool))
	defer dispatcher.Close()

	servers, err := a.newServers(dispatcher, clk)
	if err != nil {
		return err
	}

	return a.run(ctx, servers)
}

func (a *App) dispatcherOptions(clk clock.Clock, pool *offload.Pool) http1.Options {
	opts := http1.Options{
		Config: a.cfg,
		Clock:  clk,
		Encoding: encoding.Options{
			Pool:   pool,
			Logger: a.logger,
		},
		Logger: a.logger,
	}

	// a nil *metrics.Metrics mustn't end up in the interfaces
	if a.metrics != nil {
		opts.Encoding.Observer = a.metrics
		opts.KeepAlive = a.metrics
		opts.Observer = a.metrics
	}

	return opts
}

func (a *App) jobObserver() offload.Observer {
	if a.metrics == nil {
		return nil
	}

	return a.metrics
}

func (a *App) newServers(dispatcher *http1.Dispatcher, clk clock.Clock) ([]*tcp.Server, error) {
	servers := make([]*tcp.Server, 0, len(a.listeners))

	for _, listener := range a.listeners {
		sock, err := listener.Factory("tcp", listener.Addr)
		if err != nil {
			for _, server := range servers {
				_ = server.Stop()
			}

			return nil, fmt.Errorf("listen %s: %w", listener.Addr, err)
		}

		servers = append(servers, tcp.NewServer(sock, dispatcher.Serve, tcp.Options{
			AcceptLoopInterruptPeriod: a.cfg.NET.AcceptLoopInterruptPeriod,
			Clock:                     clk,
			Logger:                    a.logger,
		}))
	}

	a.mu.Lock()
	a.servers = servers
	a.mu.Unlock()

	return servers, nil
}

func (a *App) run(ctx context.Context, servers []*tcp.Server) error {
	errCh := make(chan error, len(servers))
	for _, server := range servers {
		go func() {
			errCh <- server.Serve()
		}()

		a.logger.Info("listening", slog.String("addr", server.Addr().String()))
	}

	callIfNotNil(a.hooks.OnStart)
	defer callIfNotNil(a.hooks.OnStop)

	var err error
	select {
	case err = <-errCh:
		// a server failed on its own, the others are useless now
		a.logger.Error("server failed", slog.Any("error", err))
		stopAll(servers)
	case <-a.stop:
		stopAll(servers)
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully", slog.Duration("timeout", a.cfg.NET.ShutdownTimeout))
		if serr := a.shutdown(servers); serr != nil {
			a.logger.Warn("graceful shutdown interrupted", slog.Any("error", serr))
		}
	}

	remaining := len(servers)
	if err != nil {
		remaining--
	}

	for range remaining {
		if serr := <-errCh; err == nil && !errors.Is(serr, tcp.ErrShutdown) {
			err = serr
		}
	}

	if errors.Is(err, tcp.ErrShutdown) {
		return nil
	}

	return err
}

func (a *App) shutdown(servers []*tcp.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.NET.ShutdownTimeout)
	defer cancel()

	errs := make([]error, len(servers))
	var wg sync.WaitGroup
	for i, server := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = server.GracefulShutdown(ctx)
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}

func stopAll(servers []*tcp.Server) {
	for _, server := range servers {
		_ = server.Stop()
	}
}

// Stop stops the whole application immediately, closing all the connections. The call
// isn't blocking, Serve returns once everything is down.
func (a *App) Stop() {
	a.stopped.Do(func() {
		close(a.stop)
	})
}

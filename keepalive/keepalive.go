// Package keepalive implements a service decorator failing connections which stay idle
// for longer than the keep-alive duration.
package keepalive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/indigo-web/strand/clock"
	"github.com/indigo-web/strand/service"
)

// ErrTimeout is the default error reported by an expired guard.
var ErrTimeout = errors.New("keep-alive timeout")

// Observer is notified about expired guards. Must be safe for concurrent use.
type Observer interface {
	TimedOut()
}

type nopObserver struct{}

func (nopObserver) TimedOut() {}

// KeepAlive is the factory of keep-alive guards. It is a cheap value and may be shared
// by any number of connections. The configuration passed to NewService is ignored, so
// the factory composes with any application factory via service.ThenFactory.
type KeepAlive[Cfg, R any] struct {
	duration   time.Duration
	clock      clock.Clock
	errFactory func() error
	observer   Observer
	logger     *slog.Logger
}

// New returns a factory of guards with the given keep-alive duration. errFactory produces
// the error reported on timeout; ErrTimeout is used if it's nil.
func New[Cfg, R any](duration time.Duration, clk clock.Clock, errFactory func() error) KeepAlive[Cfg, R] {
	if errFactory == nil {
		errFactory = func() error {
			return ErrTimeout
		}
	}

	return KeepAlive[Cfg, R]{
		duration:   duration,
		clock:      clk,
		errFactory: errFactory,
		observer:   nopObserver{},
		logger:     slog.New(slog.DiscardHandler),
	}
}

// Observe returns a copy of the factory whose guards report timeouts to the observer.
func (k KeepAlive[Cfg, R]) Observe(observer Observer) KeepAlive[Cfg, R] {
	if observer != nil {
		k.observer = observer
	}

	return k
}

// Log returns a copy of the factory whose guards log timeouts into the logger.
func (k KeepAlive[Cfg, R]) Log(logger *slog.Logger) KeepAlive[Cfg, R] {
	if logger != nil {
		k.logger = logger
	}

	return k
}

// Duration returns the keep-alive duration.
func (k KeepAlive[Cfg, R]) Duration() time.Duration {
	return k.duration
}

func (k KeepAlive[Cfg, R]) NewService(context.Context, Cfg) (service.Service[R, R], error) {
	return k.Guard(), nil
}

// Guard returns a fresh guard with the deadline set duration from now.
func (k KeepAlive[Cfg, R]) Guard() *Service[R] {
	deadline := k.clock.Now().Add(k.duration)

	return &Service[R]{
		duration:   k.duration,
		clock:      k.clock,
		errFactory: k.errFactory,
		observer:   k.observer,
		logger:     k.logger,
		deadline:   deadline,
		delay:      k.clock.Delay(deadline),
	}
}

// Service is a keep-alive guard. It passes requests through unchanged and reports
// an error from Ready once no request was served within the keep-alive duration.
//
// A guard is owned by a single connection and isn't safe for concurrent use.
type Service[R any] struct {
	duration   time.Duration
	clock      clock.Clock
	errFactory func() error
	observer   Observer
	logger     *slog.Logger

	deadline time.Time
	delay    clock.Delay
	err      error
}

// Ready never blocks. It reports the timeout error if the deadline is passed, and nil
// otherwise. An expired guard doesn't recover.
func (s *Service[R]) Ready(context.Context) error {
	if s.err != nil {
		return s.err
	}

	if !s.delay.Fired() {
		return nil
	}

	now := s.clock.Now()
	if !now.Before(s.deadline) {
		s.err = s.errFactory()
		s.observer.TimedOut()
		s.logger.Debug("keep-alive deadline exceeded",
			slog.Time("deadline", s.deadline),
			slog.Duration("idle", now.Sub(s.deadline)+s.duration),
		)

		return s.err
	}

	// the deadline was extended since the delay had been armed
	s.delay.Reset(s.deadline)
	_ = s.delay.Fired()

	return nil
}

// Call extends the deadline and returns the request as is. It never fails. The delay
// isn't touched here; Ready re-arms it once it fires against an extended deadline.
// The deadline never moves backward, even if the wall clock does.
func (s *Service[R]) Call(_ context.Context, req R) (R, error) {
	if next := s.clock.Now().Add(s.duration); next.After(s.deadline) {
		s.deadline = next
	}

	return req, nil
}

// Deadline returns the instant after which the guard expires, unless a request is served.
func (s *Service[R]) Deadline() time.Time {
	return s.deadline
}

// Wait blocks until the guard expires or ctx is done. Returns the timeout error in the
// former case.
func (s *Service[R]) Wait(ctx context.Context) error {
	for {
		if err := s.Ready(ctx); err != nil {
			return err
		}

		if err := s.delay.Wait(ctx); err != nil {
			return err
		}
	}
}

// Close disarms the guard. No timeout is reported afterward.
func (s *Service[R]) Close() {
	s.delay.Stop()
}

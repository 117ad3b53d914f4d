// Package offload runs blocking, CPU-heavy work off the connection goroutines on a
// bounded set of workers. Each submission yields a Handle, which resolves exactly once.
package offload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

var (
	// ErrCanceled is reported by handles whose job never ran, e.g. because the pool was
	// closed before a worker picked the job up.
	ErrCanceled = errors.New("offload: job canceled")
	// ErrPanicked wraps the value a job panicked with.
	ErrPanicked = errors.New("offload: job panicked")
)

// Observer is notified about job lifecycle events. All the methods must be safe for
// concurrent use.
type Observer interface {
	JobSubmitted()
	JobFinished(canceled bool)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted()     {}
func (nopObserver) JobFinished(bool) {}

type Options struct {
	// Workers is the number of goroutines executing jobs. Defaults to GOMAXPROCS.
	Workers int
	// Queue is the number of jobs waiting for a free worker before Submit starts
	// blocking. Defaults to 8 per worker.
	Queue    int
	Logger   *slog.Logger
	Observer Observer
}

type job struct {
	run    func()
	cancel func()
}

// Pool is a fixed set of workers fed by a bounded queue.
type Pool struct {
	jobs     chan job
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	logger   *slog.Logger
	observer Observer
}

func NewPool(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	if opts.Queue <= 0 {
		opts.Queue = 8 * opts.Workers
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	p := &Pool{
		jobs:     make(chan job, opts.Queue),
		logger:   opts.Logger,
		observer: opts.Observer,
	}

	p.wg.Add(opts.Workers)
	for range opts.Workers {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for j := range p.jobs {
		j.run()
	}
}

func (p *Pool) submit(j job) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// every submitted job is reported as finished exactly once, canceled ones too
	p.observer.JobSubmitted()
	if p.closed {
		j.cancel()
		return
	}

	p.jobs <- j
}

// Close stops accepting new jobs and cancels those still queued. Jobs already running
// are left to complete. Close blocks until every worker is done.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	p.mu.Unlock()

	// drain the queue, so pending jobs resolve as canceled instead of being executed
drain:
	for {
		select {
		case j := <-p.jobs:
			j.cancel()
		default:
			break drain
		}
	}

	close(p.jobs)
	p.wg.Wait()
}

// Submit schedules fn for execution on the pool and returns a handle to its result.
// Submit blocks while the queue is full.
func Submit[T any](p *Pool, fn func() (T, error)) *Handle[T] {
	h := newHandle[T]()

	p.submit(job{
		run: func() {
			value, err := protect(fn)
			if err != nil && errors.Is(err, ErrPanicked) {
				p.logger.Error("offloaded job panicked", slog.Any("error", err))
			}

			p.observer.JobFinished(false)
			h.resolve(value, err)
		},
		cancel: func() {
			var zero T
			p.observer.JobFinished(true)
			h.resolve(zero, ErrCanceled)
		},
	})

	return h
}

func protect[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()

	return fn()
}

// Handle is the completion handle of a submitted job.
type Handle[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newHandle[T any]() *Handle[T] {
	return &Handle[T]{done: make(chan struct{})}
}

func (h *Handle[T]) resolve(value T, err error) {
	h.value, h.err = value, err
	close(h.done)
}

// Done is closed as soon as the job is resolved.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job is resolved or ctx is done. Interrupting the wait
// doesn't affect the job itself; Wait may be called again later and reports the
// same result every time.
func (h *Handle[T]) Wait(ctx context.Context) (value T, err error) {
	// a resolved job wins over a done ctx, otherwise select would pick at random
	select {
	case <-h.done:
		return h.value, h.err
	default:
	}

	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return value, ctx.Err()
	}
}

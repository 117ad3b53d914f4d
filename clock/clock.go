package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the source of time for deadline-driven components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Delay returns a timer armed to fire at the given instant.
	Delay(at time.Time) Delay
}

// Delay is a one-shot timer that may be re-armed without re-allocation.
type Delay interface {
	// Fired polls the timer without blocking. Once fired, the timer stays fired until
	// it is reset.
	Fired() bool
	// Wait blocks until the timer fires or ctx is done.
	Wait(ctx context.Context) error
	// Reset re-arms the timer to fire at the new instant.
	Reset(at time.Time)
	// Stop disarms the timer. A stopped timer never fires until reset.
	Stop()
	// Deadline returns the instant the timer is armed for.
	Deadline() time.Time
}

// DefaultResolution is the frequency at which the low-resolution time is refreshed.
// 500ms are precise enough for idle timeouts.
const DefaultResolution = 500 * time.Millisecond

// LowRes is a clock updated by a single goroutine every Resolution. Reading it costs
// an atomic load instead of a syscall, at the price of being up to Resolution behind.
type LowRes struct {
	millis     atomic.Int64
	resolution time.Duration
	once       sync.Once
	stop       chan struct{}
}

func NewLowRes(resolution time.Duration) *LowRes {
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	l := &LowRes{
		resolution: resolution,
		stop:       make(chan struct{}),
	}
	// there is no guarantee the goroutine will be started immediately. If it won't,
	// rapid usage of the clock will result in zero-time
	l.millis.Store(time.Now().UnixMilli())

	go l.run()

	return l
}

func (l *LowRes) run() {
	ticker := time.NewTicker(l.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.millis.Store(now.UnixMilli())
		}
	}
}

func (l *LowRes) Resolution() time.Duration {
	return l.resolution
}

func (l *LowRes) Now() time.Time {
	millis := l.millis.Load()
	return time.Unix(millis/1000, (millis%1000)*1e6)
}

// Delay returns a timer firing one resolution after the instant, so the clock is
// guaranteed to report the instant reached by then.
func (l *LowRes) Delay(at time.Time) Delay {
	return newRealDelay(at, l.resolution)
}

// Close stops refreshing the time. The clock keeps reporting the last known time.
func (l *LowRes) Close() {
	l.once.Do(func() {
		close(l.stop)
	})
}

type realDelay struct {
	timer    *time.Timer
	deadline time.Time
	slack    time.Duration
	fired    bool
}

func newRealDelay(at time.Time, slack time.Duration) *realDelay {
	return &realDelay{
		timer:    time.NewTimer(time.Until(at) + slack),
		deadline: at,
		slack:    slack,
	}
}

func (r *realDelay) Fired() bool {
	if r.fired {
		return true
	}

	select {
	case <-r.timer.C:
		r.fired = true
	default:
	}

	return r.fired
}

func (r *realDelay) Wait(ctx context.Context) error {
	if r.fired {
		return nil
	}

	select {
	case <-r.timer.C:
		r.fired = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *realDelay) Reset(at time.Time) {
	// since go1.23 Reset guarantees no stale value is received afterward
	r.timer.Reset(time.Until(at) + r.slack)
	r.deadline = at
	r.fired = false
}

func (r *realDelay) Stop() {
	r.timer.Stop()
	r.fired = false
}

func (r *realDelay) Deadline() time.Time {
	return r.deadline
}

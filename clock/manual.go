package clock

import (
	"context"
	"sync"
	"time"
)

// Manual is a clock moved forward only explicitly via Advance or Set. Delays armed on
// it fire as soon as the clock reaches their deadline.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	delays []*manualDelay
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

func (m *Manual) Delay(at time.Time) Delay {
	d := &manualDelay{clock: m}
	d.Reset(at)

	m.mu.Lock()
	m.delays = append(m.delays, d)
	m.mu.Unlock()

	return d
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to the given instant. Moving backward is ignored.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	if now.After(m.now) {
		m.now = now
	}
	now = m.now
	delays := m.delays
	m.mu.Unlock()

	for _, d := range delays {
		d.fireIfDue(now)
	}
}

type manualDelay struct {
	clock    *Manual
	mu       sync.Mutex
	deadline time.Time
	armed    bool
	fired    bool
	done     chan struct{}
}

func (d *manualDelay) fireIfDue(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.armed && !d.fired && !now.Before(d.deadline) {
		d.fired = true
		close(d.done)
	}
}

func (d *manualDelay) Fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fired
}

func (d *manualDelay) Wait(ctx context.Context) error {
	d.mu.Lock()
	done, armed := d.done, d.armed
	d.mu.Unlock()

	if !armed {
		<-ctx.Done()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *manualDelay) Reset(at time.Time) {
	d.mu.Lock()
	d.deadline = at
	d.armed = true
	d.fired = false
	d.done = make(chan struct{})
	d.mu.Unlock()

	d.fireIfDue(d.clock.Now())
}

func (d *manualDelay) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.armed = false
	d.fired = false
}

func (d *manualDelay) Deadline() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.deadline
}

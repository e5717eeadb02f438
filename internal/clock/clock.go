package clock

import (
	"sync"
	"time"

	wall "github.com/benbjohnson/clock"
)

// Clock provides time information.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop()
}

// Scheduler runs callbacks once after a delay or repeatedly on a fixed period.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

// Source is a Clock that can also schedule work against the same timeline.
type Source interface {
	Clock
	Scheduler
}

// Real provides actual system time and runtime timers on top of a
// benbjohnson/clock wall clock. The zero value uses the system clock.
type Real struct {
	base wall.Clock
}

var system = wall.New()

// NewReal returns a Real driven by base.
func NewReal(base wall.Clock) Real {
	return Real{base: base}
}

func (r Real) source() wall.Clock {
	if r.base == nil {
		return system
	}
	return r.base
}

// Now returns the current system time.
func (r Real) Now() time.Time {
	return r.source().Now()
}

// AfterFunc calls f in its own goroutine once d has elapsed.
func (r Real) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: r.source().AfterFunc(d, f)}
}

// Every calls f every d until the returned Timer is stopped.
func (r Real) Every(d time.Duration, f func()) Timer {
	t := &realTicker{
		ticker: r.source().Ticker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

type realTimer struct {
	t *wall.Timer
}

func (r *realTimer) Stop() {
	r.t.Stop()
}

type realTicker struct {
	ticker *wall.Ticker
	done   chan struct{}
	once   sync.Once
}

func (r *realTicker) run(f func()) {
	for {
		select {
		case <-r.ticker.C:
			f()
		case <-r.done:
			return
		}
	}
}

func (r *realTicker) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}

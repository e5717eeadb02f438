package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Source for tests. Scheduled callbacks only run
// from Advance, synchronously, on the caller's goroutine.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	fake   *Fake
	when   time.Time
	period time.Duration
	fn     func()
	seq    int
}

// NewFake returns a Fake positioned at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run once the fake time has advanced by d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.add(d, 0, fn)
}

// Every schedules fn to run each time the fake time crosses a multiple of d.
func (f *Fake) Every(d time.Duration, fn func()) Timer {
	return f.add(d, d, fn)
}

func (f *Fake) add(d, period time.Duration, fn func()) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{fake: f, when: f.now.Add(d), period: period, fn: fn, seq: f.seq}
	f.timers = append(f.timers, t)
	return t
}

// Set moves the fake time to t without running any callbacks.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves time forward by d, running every callback that falls due in
// chronological order. Callbacks may schedule or stop other timers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.when
		if next.period > 0 {
			next.when = next.when.Add(next.period)
		} else {
			f.remove(next)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending reports how many timers are still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDue(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, t := range f.timers {
		if t.when.After(target) {
			continue
		}
		if next == nil || t.when.Before(next.when) || (t.when.Equal(next.when) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (f *Fake) remove(t *fakeTimer) {
	for i, candidate := range f.timers {
		if candidate == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// Stop cancels the timer. Stopping twice is harmless.
func (t *fakeTimer) Stop() {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	t.fake.remove(t)
}

package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a virtual clock for tests. Sleep advances virtual time in steps of
// at most Step and runs registered hooks after every step, so a test can
// inject a halt or a button press at a chosen virtual instant.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	start time.Time

	// Step bounds how far a single advance moves the clock.
	Step time.Duration

	hooks []hook
}

type hook struct {
	at    time.Duration
	fn    func()
	fired bool
}

// NewFake creates a Fake clock starting at start with a 100ms step.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, start: start, Step: 100 * time.Millisecond}
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Elapsed returns virtual time since the clock was created.
func (f *Fake) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Sub(f.start)
}

// At registers fn to run once when virtual elapsed time reaches at.
func (f *Fake) At(at time.Duration, fn func()) {
	f.mu.Lock()
	f.hooks = append(f.hooks, hook{at: at, fn: fn})
	f.mu.Unlock()
}

// Advance moves the clock forward by d, firing due hooks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	elapsed := f.now.Sub(f.start)
	var due []func()
	for i := range f.hooks {
		if !f.hooks[i].fired && elapsed >= f.hooks[i].at {
			f.hooks[i].fired = true
			due = append(due, f.hooks[i].fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// Sleep advances virtual time by d in bounded steps. It never blocks in real
// time and returns ctx.Err() as soon as the context is done.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	step := f.Step
	if step <= 0 {
		step = d
	}
	for d > 0 {
		s := step
		if s > d {
			s = d
		}
		f.Advance(s)
		d -= s
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

package input

import (
	"time"

	"github.com/atharvap8/intelliverter/internal/gpio"
)

// Debouncer accepts at most one press per button within its lockout window.
// It holds no timers; time comes from the edges.
type Debouncer struct {
	lockout time.Duration
	last    map[gpio.Button]time.Time
	counts  map[gpio.Button]int
}

// NewDebouncer creates a Debouncer.
func NewDebouncer(lockout time.Duration) *Debouncer {
	return &Debouncer{
		lockout: lockout,
		last:    make(map[gpio.Button]time.Time),
		counts:  make(map[gpio.Button]int),
	}
}

// Accept reports whether e is a new press rather than a bounce.
func (d *Debouncer) Accept(e gpio.Edge) bool {
	if last, ok := d.last[e.Button]; ok && e.Time.Sub(last) < d.lockout {
		return false
	}
	d.last[e.Button] = e.Time
	d.counts[e.Button]++
	return true
}

// Counts returns accepted presses per button since startup.
func (d *Debouncer) Counts() map[gpio.Button]int {
	out := make(map[gpio.Button]int, len(d.counts))
	for b, n := range d.counts {
		out[b] = n
	}
	return out
}

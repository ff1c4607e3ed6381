package level

import (
	"sync"
	"time"

	"github.com/atharvap8/intelliverter/internal/clock"
)

// Tub simulates the drum for running the daemon without hardware. The
// volume rises while the inlet is open and falls while a drain runs; raw
// readings are the inverse of the calibration so an Adapter reads liters
// back unchanged.
type Tub struct {
	// FillRate and DrainRate are in liters per second.
	FillRate  float64
	DrainRate float64
	Capacity  float64

	mu     sync.Mutex
	clock  clock.Clock
	cal    Calibration
	flow   func() (filling, draining bool)
	liters float64
	at     time.Time
}

// NewTub creates an empty tub. flow reports the inlet and drain states.
func NewTub(clk clock.Clock, cal Calibration, flow func() (filling, draining bool)) *Tub {
	return &Tub{
		clock:     clk,
		cal:       cal,
		flow:      flow,
		at:        clk.Now(),
		FillRate:  0.25,
		DrainRate: 0.5,
		Capacity:  40,
	}
}

// ReadRaw advances the simulation to now and returns the raw reading.
func (t *Tub) ReadRaw() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	dt := now.Sub(t.at).Seconds()
	t.at = now
	filling, draining := t.flow()
	if filling {
		t.liters += t.FillRate * dt
	}
	if draining {
		t.liters -= t.DrainRate * dt
	}
	t.liters = min(max(t.liters, 0), t.Capacity)
	return (t.liters + t.cal.Offset) * t.cal.Multiplier, nil
}

// Liters returns the simulated volume without advancing time.
func (t *Tub) Liters() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liters
}

// Package level converts load-cell amplifier readings into a calibrated
// water volume. The transform is linear: liters = raw/multiplier - offset.
package level

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/clock"
)

// ErrNotReady is returned when the amplifier does not deliver a sample.
var ErrNotReady = errors.New("level sensor not ready")

// Source produces raw amplifier units (count/scale).
type Source interface {
	ReadRaw() (float64, error)
}

// Calibration holds the process-wide transform constants.
type Calibration struct {
	Multiplier float64
	Offset     float64
}

// Liters applies the calibration transform.
func (c Calibration) Liters(raw float64) float64 {
	return raw/c.Multiplier - c.Offset
}

// Sample is a single calibrated reading.
type Sample struct {
	Raw    float64
	Liters float64
	Time   time.Time
	// Stale is set when the source failed and the last known value was
	// returned instead.
	Stale bool
}

// Adapter reads a Source and applies the calibration.
// Safe for concurrent use; the status page reads it while a phase polls.
type Adapter struct {
	src   Source
	cal   Calibration
	clock clock.Clock
	log   *zap.SugaredLogger

	mu   sync.Mutex
	last Sample
	seen bool
}

// NewAdapter creates an Adapter. cal.Multiplier must be non-zero.
func NewAdapter(src Source, cal Calibration, clk clock.Clock, log *zap.SugaredLogger) *Adapter {
	return &Adapter{src: src, cal: cal, clock: clk, log: log}
}

// Calibration returns the transform constants in use.
func (a *Adapter) Calibration() Calibration {
	return a.cal
}

// Read takes one sample. If the source fails, the last known sample is
// returned with Stale set; before any successful read the liters value is
// NaN, which never satisfies a fill or drain threshold.
func (a *Adapter) Read() Sample {
	raw, err := a.src.ReadRaw()
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.log.Warnw("level read failed", "err", err)
		if !a.seen {
			return Sample{Raw: math.NaN(), Liters: math.NaN(), Time: now, Stale: true}
		}
		s := a.last
		s.Stale = true
		return s
	}
	a.last = Sample{Raw: raw, Liters: a.cal.Liters(raw), Time: now}
	a.seen = true
	return a.last
}

// ReadLiters takes one sample and returns its calibrated value.
func (a *Adapter) ReadLiters() float64 {
	return a.Read().Liters
}

// Last returns the most recent sample without touching the sensor.
func (a *Adapter) Last() (Sample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.seen
}

// ReadLitersAveraged takes n samples delay apart and returns the mean of
// the fresh ones. It never blocks longer than n*delay. If no sample was
// fresh the last known value is returned with ErrNotReady.
func (a *Adapter) ReadLitersAveraged(ctx context.Context, n int, delay time.Duration) (float64, error) {
	if n < 1 {
		n = 1
	}
	var sum float64
	fresh := 0
	var last Sample
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := a.clock.Sleep(ctx, delay); err != nil {
				return last.Liters, err
			}
		}
		last = a.Read()
		if !last.Stale {
			sum += last.Liters
			fresh++
		}
	}
	if fresh == 0 {
		return last.Liters, ErrNotReady
	}
	return sum / float64(fresh), nil
}

//go:build linux

package level

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// readyTimeout bounds the wait for DOUT to go low. The HX711 converts at
// 10 Hz by default so one conversion is at most ~100ms away.
const readyTimeout = 150 * time.Millisecond

// HX711 reads the load-cell amplifier by bit-banging its two-wire interface
// over the GPIO character device. Channel A at gain 128 (25 clock pulses).
type HX711 struct {
	mu    sync.Mutex
	data  *gpiocdev.Line
	clk   *gpiocdev.Line
	scale float64
}

// NewHX711 requests the data line as input and the clock line as output.
// scale converts counts into units; use 1 for an uncalibrated sensor.
func NewHX711(chipName string, dataPin, clockPin int, scale float64) (*HX711, error) {
	if scale == 0 {
		return nil, errors.New("hx711: scale must be non-zero")
	}
	data, err := gpiocdev.RequestLine(chipName, dataPin, gpiocdev.AsInput, gpiocdev.WithConsumer("intelliverter-hx711"))
	if err != nil {
		return nil, fmt.Errorf("request hx711 data pin %d: %w", dataPin, err)
	}
	clk, err := gpiocdev.RequestLine(chipName, clockPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("intelliverter-hx711"))
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("request hx711 clock pin %d: %w", clockPin, err)
	}
	return &HX711{data: data, clk: clk, scale: scale}, nil
}

// ReadRaw returns count / scale. Zeroing is left to Calibration.Offset.
func (h *HX711) ReadRaw() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	raw, err := h.readCount()
	if err != nil {
		return 0, err
	}
	return countsToUnits(raw, h.scale), nil
}

func (h *HX711) readCount() (uint32, error) {
	deadline := time.Now().Add(readyTimeout)
	for {
		v, err := h.data.Value()
		if err != nil {
			return 0, fmt.Errorf("hx711 data: %w", err)
		}
		if v == 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, ErrNotReady
		}
		time.Sleep(time.Millisecond)
	}

	var raw uint32
	for i := 0; i < 24; i++ {
		bit, err := h.pulse()
		if err != nil {
			return 0, err
		}
		raw = raw<<1 | uint32(bit)
	}
	// 25th pulse selects channel A, gain 128 for the next conversion.
	if _, err := h.pulse(); err != nil {
		return 0, err
	}
	return raw, nil
}

func (h *HX711) pulse() (int, error) {
	if err := h.clk.SetValue(1); err != nil {
		return 0, fmt.Errorf("hx711 clock: %w", err)
	}
	if err := h.clk.SetValue(0); err != nil {
		return 0, fmt.Errorf("hx711 clock: %w", err)
	}
	v, err := h.data.Value()
	if err != nil {
		return 0, fmt.Errorf("hx711 data: %w", err)
	}
	return v, nil
}

// Close releases both lines. The clock is left low so the chip stays awake
// for the next owner.
func (h *HX711) Close() error {
	return errors.Join(h.clk.Close(), h.data.Close())
}

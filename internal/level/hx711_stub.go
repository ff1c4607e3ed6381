//go:build !linux

package level

import "errors"

// HX711 is not available on non-Linux platforms.
type HX711 struct{}

// NewHX711 returns an error on non-Linux platforms.
func NewHX711(chipName string, dataPin, clockPin int, scale float64) (*HX711, error) {
	return nil, errors.New("hx711: not supported on this platform (requires Linux)")
}

// ReadRaw is not implemented on non-Linux platforms.
func (h *HX711) ReadRaw() (float64, error) {
	return 0, ErrNotReady
}

// Close is not implemented on non-Linux platforms.
func (h *HX711) Close() error {
	return nil
}

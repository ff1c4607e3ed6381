//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealLines is not available on non-Linux platforms.
type RealLines struct{}

// NewRealLines returns an error on non-Linux platforms.
func NewRealLines(chipName string, pins Pins, activeLow bool) (*RealLines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *RealLines) Set(line Line, on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealLines) Close() error {
	return nil
}

// ButtonWatcher is not available on non-Linux platforms.
type ButtonWatcher struct{}

// WatchButtons returns an error on non-Linux platforms.
func WatchButtons(chipName string, pins Pins, debounce time.Duration, handler func(Edge)) (*ButtonWatcher, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (w *ButtonWatcher) Close() error {
	return nil
}

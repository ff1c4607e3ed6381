//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealLines drives output lines on actual hardware using the Linux GPIO
// character device.
type RealLines struct {
	chip  *gpiocdev.Chip
	lines map[Line]*gpiocdev.Line
}

// NewRealLines requests every line in pins.Lines as an output, initially
// de-energised. activeLow inverts the physical level for relay boards that
// switch on a low input.
func NewRealLines(chipName string, pins Pins, activeLow bool) (*RealLines, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealLines{chip: chip, lines: make(map[Line]*gpiocdev.Line)}
	for _, l := range Lines {
		offset, ok := pins.Lines[l]
		if !ok {
			continue
		}
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("intelliverter")}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", l, offset, err)
		}
		r.lines[l] = line
	}
	return r, nil
}

// Set drives the logical state of line.
func (r *RealLines) Set(line Line, on bool) error {
	l, ok := r.lines[line]
	if !ok {
		return fmt.Errorf("%s: not configured", line)
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", line, err)
	}
	return nil
}

// Close de-energises every output and releases the lines.
// Pins are reconfigured as inputs so relays cannot latch during reboot.
func (r *RealLines) Close() error {
	var errs []error
	for name, l := range r.lines {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", name, err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", name, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ButtonWatcher delivers button edges from kernel edge events.
type ButtonWatcher struct {
	lines []*gpiocdev.Line
}

// WatchButtons requests each button line as a pulled-up input with falling
// edge detection and kernel debounce. handler runs on the gpiocdev event
// goroutine and must not block.
func WatchButtons(chipName string, pins Pins, debounce time.Duration, handler func(Edge)) (*ButtonWatcher, error) {
	w := &ButtonWatcher{}
	for b, offset := range pins.Buttons {
		button := b
		line, err := gpiocdev.RequestLine(chipName, offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithDebounce(debounce),
			gpiocdev.WithConsumer("intelliverter"),
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				handler(Edge{Button: button, Time: time.Now()})
			}),
		)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request %s button pin %d: %w", button, offset, err)
		}
		w.lines = append(w.lines, line)
	}
	return w, nil
}

// Close releases the button lines.
func (w *ButtonWatcher) Close() error {
	var errs []error
	for _, l := range w.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/config"
	"github.com/atharvap8/intelliverter/internal/gpio"
	"github.com/atharvap8/intelliverter/internal/level"
)

// hardware bundles the backends the daemon drives. With hardware.fake set
// everything is in memory and the level sensor is a simulated tub fed by
// the fake inlet and drain lines.
type hardware struct {
	lines  gpio.Writer
	drive  gpio.Driver
	sensor level.Source
	pins   gpio.Pins
	fake   bool

	closers []io.Closer
}

func openHardware(cfg config.Config, clk clock.Clock) (*hardware, error) {
	pins, err := cfg.GPIOPins()
	if err != nil {
		return nil, err
	}
	hw := &hardware{pins: pins, fake: cfg.Hardware.Fake}

	if hw.fake {
		lines := gpio.NewFakeLines()
		hw.lines = lines
		hw.drive = gpio.NewFakeDriver()
		hw.sensor = level.NewTub(clk, cfg.Calibration(), func() (bool, bool) {
			return lines.Get(gpio.InletValve), lines.Get(gpio.WashDrain) || lines.Get(gpio.SpinDrain)
		})
		return hw, nil
	}

	lines, err := gpio.NewRealLines(cfg.Hardware.Chip, pins, cfg.Wiring.ActiveLow)
	if err != nil {
		return nil, fmt.Errorf("init output lines: %w", err)
	}
	hw.lines = lines
	hw.closers = append(hw.closers, lines)

	drive, err := gpio.NewSysfsPWM(gpio.SysfsRoot, cfg.PWM.Chip, cfg.PWM.Channel, cfg.PWM.Period)
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("init inverter pwm: %w", err)
	}
	hw.drive = drive
	hw.closers = append(hw.closers, drive)

	sensor, err := openSensor(cfg)
	if err != nil {
		hw.Close()
		return nil, err
	}
	hw.sensor = sensor
	hw.closers = append(hw.closers, sensor)
	return hw, nil
}

func openSensor(cfg config.Config) (*level.HX711, error) {
	s, err := level.NewHX711(cfg.Hardware.Chip, cfg.Sensor.DataPin, cfg.Sensor.ClockPin, cfg.Sensor.EffectiveScale())
	if err != nil {
		return nil, fmt.Errorf("init level sensor: %w", err)
	}
	return s, nil
}

// watchButtons starts delivering front-panel presses. The fake backend has
// no buttons; use the console or the HTTP API instead.
func (hw *hardware) watchButtons(cfg config.Config, handler func(gpio.Edge)) error {
	if hw.fake {
		return nil
	}
	w, err := gpio.WatchButtons(cfg.Hardware.Chip, hw.pins, cfg.Wiring.Debounce, handler)
	if err != nil {
		return fmt.Errorf("init buttons: %w", err)
	}
	hw.closers = append(hw.closers, w)
	return nil
}

// Close releases everything in reverse order of acquisition.
func (hw *hardware) Close() error {
	var errs []error
	for i := len(hw.closers) - 1; i >= 0; i-- {
		if err := hw.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	hw.closers = nil
	return errors.Join(errs...)
}

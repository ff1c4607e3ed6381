// Package gpio provides output line control, inverter drive-level PWM and
// button edge watching with hardware abstraction.
// The real implementation uses the Linux GPIO character device and the
// sysfs PWM interface. The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"time"
)

// Line identifies a digital output.
type Line int

const (
	InletValve Line = iota
	WashDrain
	SpinDrain
	InverterPower
	Changeover1
	Changeover2
	LEDSoak
	LEDWash
	LEDRinse
	LEDSpin
	LEDNetwork
)

// Lines lists every output line in request order.
var Lines = []Line{
	InletValve, WashDrain, SpinDrain, InverterPower, Changeover1, Changeover2,
	LEDSoak, LEDWash, LEDRinse, LEDSpin, LEDNetwork,
}

var lineNames = map[Line]string{
	InletValve:    "inlet_valve",
	WashDrain:     "wash_drain",
	SpinDrain:     "spin_drain",
	InverterPower: "inverter_power",
	Changeover1:   "changeover_1",
	Changeover2:   "changeover_2",
	LEDSoak:       "led_soak",
	LEDWash:       "led_wash",
	LEDRinse:      "led_rinse",
	LEDSpin:       "led_spin",
	LEDNetwork:    "led_network",
}

func (l Line) String() string {
	if s, ok := lineNames[l]; ok {
		return s
	}
	return fmt.Sprintf("line(%d)", int(l))
}

// Writer drives digital output lines.
type Writer interface {
	// Set drives the line to its logical state (true = energised).
	Set(line Line, on bool) error

	// Close releases GPIO resources, leaving all lines de-energised.
	Close() error
}

// Driver sets the analog drive level of the inverter.
type Driver interface {
	// SetLevel sets the duty cycle as an 8-bit level (0 = stopped).
	SetLevel(level uint8) error

	// Close stops the output and releases it.
	Close() error
}

// Button identifies a front-panel push button.
type Button int

const (
	ButtonWash Button = iota
	ButtonRinse
	ButtonSpin
	ButtonComplete
	ButtonHalt
)

var buttonNames = map[Button]string{
	ButtonWash:     "wash",
	ButtonRinse:    "rinse",
	ButtonSpin:     "spin",
	ButtonComplete: "complete",
	ButtonHalt:     "halt",
}

func (b Button) String() string {
	if s, ok := buttonNames[b]; ok {
		return s
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// Edge is a debounced press (falling edge) on a button input.
type Edge struct {
	Button Button
	Time   time.Time
}

// Pins maps outputs and buttons to BCM line offsets.
type Pins struct {
	Lines   map[Line]int
	Buttons map[Button]int
}

// DefaultPins returns the reference wiring (BCM numbering).
func DefaultPins() Pins {
	return Pins{
		Lines: map[Line]int{
			InletValve:    17,
			WashDrain:     27,
			SpinDrain:     22,
			InverterPower: 5,
			Changeover1:   6,
			Changeover2:   13,
			LEDSoak:       16,
			LEDWash:       26,
			LEDRinse:      24,
			LEDSpin:       25,
			LEDNetwork:    12,
		},
		Buttons: map[Button]int{
			ButtonWash:     4,
			ButtonRinse:    14,
			ButtonSpin:     15,
			ButtonComplete: 7,
			ButtonHalt:     8,
		},
	}
}

// Chip is the GPIO character device used on the Pi.
const Chip = "gpiochip0"

// Package actuator owns every output of the machine and enforces which
// combinations may be energised together. Phase logic never writes GPIO
// directly; it goes through the guarded setters of a Bank.
package actuator

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/gpio"
)

// ErrInterlock is returned when a setter would create an unsafe combination.
var ErrInterlock = errors.New("interlock violation")

// DrainStage selects one of the two drain motors.
type DrainStage int

const (
	WashStage DrainStage = iota
	SpinStage
)

func (s DrainStage) String() string {
	if s == SpinStage {
		return "spin"
	}
	return "wash"
}

// State is the conjunction of all output states.
type State struct {
	InletValve    bool  `json:"inlet_valve"`
	WashDrain     bool  `json:"wash_drain"`
	SpinDrain     bool  `json:"spin_drain"`
	InverterPower bool  `json:"inverter_power"`
	Changeover1   bool  `json:"changeover_1"`
	Changeover2   bool  `json:"changeover_2"`
	DriveLevel    uint8 `json:"drive_level"`
	// Brake is set while changeover 1 is held with the inverter off.
	Brake bool `json:"brake"`
}

// Off reports whether every output is in its OFF/neutral value.
func (s State) Off() bool {
	return s == State{}
}

// Draining reports whether either drain motor is asserted.
func (s State) Draining() bool {
	return s.WashDrain || s.SpinDrain
}

// Rules configures the site-specific interlock exceptions.
type Rules struct {
	// DrainDuringSpin permits the drain motors to stay asserted while the
	// inverter drives the drum, for wiring where one drain relay serves
	// both the wash and spin stages.
	DrainDuringSpin bool
}

// Bank drives the outputs through gpio and tracks their state.
type Bank struct {
	out   gpio.Writer
	drive gpio.Driver
	rules Rules
	log   *zap.SugaredLogger

	mu     sync.RWMutex
	st     State
	permit bool
}

// NewBank creates a Bank. The hardware is assumed to start de-energised;
// call AllStop to force it.
func NewBank(out gpio.Writer, drive gpio.Driver, rules Rules, log *zap.SugaredLogger) *Bank {
	return &Bank{out: out, drive: drive, rules: rules, log: log}
}

// State returns a snapshot of the outputs.
func (b *Bank) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.st
}

func violation(rule string) error {
	return fmt.Errorf("%w: %s", ErrInterlock, rule)
}

// SetInletValve opens or closes the inlet. The valve cannot open while
// either drain motor runs.
func (b *Bank) SetInletValve(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.InletValve == on {
		return nil
	}
	if on && b.st.Draining() {
		return violation("inlet valve while draining")
	}
	if err := b.out.Set(gpio.InletValve, on); err != nil {
		return err
	}
	b.st.InletValve = on
	return nil
}

// SetDrainMotor switches one drain motor. A drain cannot start while the
// inlet is open, nor while the drum is driven unless drain-spin is
// permitted for the current phase.
func (b *Bank) SetDrainMotor(stage DrainStage, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := &b.st.WashDrain
	line := gpio.WashDrain
	if stage == SpinStage {
		cur = &b.st.SpinDrain
		line = gpio.SpinDrain
	}
	if *cur == on {
		return nil
	}
	if on {
		if b.st.InletValve {
			return violation("drain while inlet open")
		}
		if b.driving() && !b.permit {
			return violation("drain while driving")
		}
	}
	if err := b.out.Set(line, on); err != nil {
		return err
	}
	*cur = on
	return nil
}

// SetInverterPower enables or disables the inverter. It cannot be switched
// off under drive or with the changeover relays held.
func (b *Bank) SetInverterPower(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.InverterPower == on {
		return nil
	}
	if on && b.st.Brake {
		return violation("inverter on while braking")
	}
	if !on && b.st.DriveLevel > 0 {
		return violation("inverter off under drive")
	}
	if !on && (b.st.Changeover1 || b.st.Changeover2) {
		return violation("changeover held with inverter off")
	}
	if err := b.out.Set(gpio.InverterPower, on); err != nil {
		return err
	}
	b.st.InverterPower = on
	return nil
}

// SetChangeover sets both changeover relays (motor direction). It requires
// the inverter to be powered and the drive level to be zero.
func (b *Bank) SetChangeover(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.Changeover1 == on && b.st.Changeover2 == on {
		return nil
	}
	if on && !b.st.InverterPower {
		return violation("changeover with inverter off")
	}
	if b.st.DriveLevel > 0 {
		return violation("direction change under drive")
	}
	if err := b.out.Set(gpio.Changeover1, on); err != nil {
		return err
	}
	b.st.Changeover1 = on
	if err := b.out.Set(gpio.Changeover2, on); err != nil {
		return err
	}
	b.st.Changeover2 = on
	return nil
}

// SetDriveLevel sets the inverter drive signal. A non-zero level requires
// the inverter powered and, unless permitted, no drain running.
func (b *Bank) SetDriveLevel(level uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.DriveLevel == level {
		return nil
	}
	if level > 0 {
		if !b.st.InverterPower {
			return violation("drive level with inverter off")
		}
		if b.st.Draining() && !b.permit {
			return violation("drive while draining")
		}
	}
	if err := b.drive.SetLevel(level); err != nil {
		return err
	}
	b.st.DriveLevel = level
	return nil
}

// PermitDrainSpin allows drain and drive together until the next AllStop.
// It fails unless the wiring rules allow it.
func (b *Bank) PermitDrainSpin() error {
	if !b.rules.DrainDuringSpin {
		return violation("drain during spin not permitted by wiring rules")
	}
	b.mu.Lock()
	b.permit = true
	b.mu.Unlock()
	return nil
}

// DrainSpinPermitted reports the configured wiring rule.
func (b *Bank) DrainSpinPermitted() bool {
	return b.rules.DrainDuringSpin
}

// SetBrake holds changeover 1 with the inverter de-energised to stop a
// coasting drum. It requires the inverter off and zero drive.
func (b *Bank) SetBrake(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.Brake == on {
		return nil
	}
	if on && (b.st.InverterPower || b.st.DriveLevel > 0) {
		return violation("brake with inverter on")
	}
	if err := b.out.Set(gpio.Changeover1, on); err != nil {
		return err
	}
	b.st.Changeover1 = on
	b.st.Brake = on
	return nil
}

func (b *Bank) driving() bool {
	return b.st.InverterPower && b.st.DriveLevel > 0
}

// AllStop drives every output to its safe OFF state regardless of what the
// bank believes the current state is. It is the recovery primitive used by
// every failure path; all writes are attempted even if some fail.
func (b *Bank) AllStop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if err := b.drive.SetLevel(0); err != nil {
		errs = append(errs, fmt.Errorf("drive level: %w", err))
	} else {
		b.st.DriveLevel = 0
	}
	for _, w := range []struct {
		line gpio.Line
		st   *bool
	}{
		{gpio.InletValve, &b.st.InletValve},
		{gpio.Changeover1, &b.st.Changeover1},
		{gpio.Changeover2, &b.st.Changeover2},
		{gpio.InverterPower, &b.st.InverterPower},
		{gpio.WashDrain, &b.st.WashDrain},
		{gpio.SpinDrain, &b.st.SpinDrain},
	} {
		if err := b.out.Set(w.line, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.line, err))
			continue
		}
		*w.st = false
	}
	if !b.st.Changeover1 {
		b.st.Brake = false
	}
	b.permit = false

	err := errors.Join(errs...)
	if err != nil {
		b.log.Errorw("all-stop incomplete", "err", err)
	}
	return err
}

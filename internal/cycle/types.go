// Package cycle sequences the fill, agitate, drain, balance-wait and spin
// steps of each wash stage. Every stage starts and ends in all-stop and
// moves through a fixed, strictly forward list of phases.
package cycle

import (
	"errors"
	"fmt"
)

var (
	// ErrFillTimeout reports that the level did not reach the fill target
	// within the fill timeout.
	ErrFillTimeout = errors.New("fill timeout")
	// ErrDrainTimeout reports that the level did not fall to the drain
	// threshold within the drain timeout.
	ErrDrainTimeout = errors.New("drain timeout")
	// ErrHalted reports a user halt. It is never fatal.
	ErrHalted = errors.New("halted")
	// ErrTransition reports a phase change outside the stage's plan.
	ErrTransition = errors.New("invalid phase transition")
	// ErrBusy is returned when a stage is started while another runs.
	ErrBusy = errors.New("a stage is already running")
	// ErrUnknownStage is returned by Run for a stage it cannot execute.
	ErrUnknownStage = errors.New("unknown stage")
)

// Stage is one kind of cycle stage.
type Stage string

const (
	StageNone  Stage = ""
	StageWash  Stage = "WASH"
	StageRinse Stage = "RINSE"
	StageSpin  Stage = "SPIN"
	StageSoak  Stage = "SOAK"
)

// Phase is the position of the controller within a stage.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFilling
	PhaseAgitating
	PhaseAdjustingLevel
	PhaseDraining
	PhaseAwaitingBalance
	PhaseSpinning
	PhaseComplete
)

var phaseNames = [...]string{
	PhaseIdle:            "Idle",
	PhaseFilling:         "Filling",
	PhaseAgitating:       "Agitating",
	PhaseAdjustingLevel:  "AdjustingLevel",
	PhaseDraining:        "Draining",
	PhaseAwaitingBalance: "AwaitingBalance",
	PhaseSpinning:        "Spinning",
	PhaseComplete:        "Complete",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// plans lists the phases each stage walks through, in order. Only the next
// entry may be entered; a halt returns to Idle from anywhere.
var plans = map[Stage][]Phase{
	StageWash:  {PhaseFilling, PhaseAgitating, PhaseAdjustingLevel, PhaseAgitating, PhaseComplete},
	StageRinse: {PhaseFilling, PhaseAgitating, PhaseComplete},
	StageSpin:  {PhaseDraining, PhaseAwaitingBalance, PhaseSpinning, PhaseComplete},
	StageSoak:  {PhaseFilling, PhaseAgitating, PhaseComplete},
}

// Plan returns the ordered phases of stage.
func Plan(stage Stage) []Phase {
	return append([]Phase(nil), plans[stage]...)
}

// Fault describes where a stage stopped abnormally.
type Fault struct {
	Stage Stage
	Phase Phase
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s/%s: %v", f.Stage, f.Phase, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Halted reports whether the fault is a user halt.
func (f *Fault) Halted() bool {
	return errors.Is(f.Err, ErrHalted)
}

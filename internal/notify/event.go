// Package notify defines the events reported by the cycle controller and
// program orchestrator, and delivers them to the remote channel, display
// and log without ever blocking the control loop.
package notify

import (
	"fmt"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	PhaseStart      Kind = "PHASE_START"
	FillComplete    Kind = "FILL_COMPLETE"
	DrainComplete   Kind = "DRAIN_COMPLETE"
	AwaitingBalance Kind = "AWAITING_BALANCE"
	PhaseComplete   Kind = "PHASE_COMPLETE"
	PhaseFault      Kind = "PHASE_FAULT"
	PhaseHalted     Kind = "PHASE_HALTED"

	ProgramSelected  Kind = "PROGRAM_SELECTED"
	ProgramCancelled Kind = "PROGRAM_CANCELLED"
	ProgramStart     Kind = "PROGRAM_START"
	ProgramComplete  Kind = "PROGRAM_COMPLETE"
	ProgramFault     Kind = "PROGRAM_FAULT"
	ProgramHalted    Kind = "PROGRAM_HALTED"

	// Diagnostic carries free text, e.g. from an engineering tool.
	Diagnostic Kind = "DIAGNOSTIC"
)

// Event is one report. Fields that do not apply to a kind are left zero.
type Event struct {
	Time    time.Time
	Kind    Kind
	RunID   string
	Program string // e.g. "WASH_ONLY"
	Stage   string // e.g. "WASH"
	Liters  float64
	Runtime time.Duration
	Err     string
	Message string
}

// Text renders the event as the operator-facing message.
func (e Event) Text() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case PhaseStart:
		return fmt.Sprintf("%s Started", title(e.Stage))
	case FillComplete:
		return fmt.Sprintf("%s water filling complete. Filled: %.2f L", title(e.Stage), e.Liters)
	case DrainComplete:
		return fmt.Sprintf("Water drain complete. Level: %.2f L", e.Liters)
	case AwaitingBalance:
		return "Water Drain Complete. Waiting for User Input to Start Spinning."
	case PhaseComplete:
		return fmt.Sprintf("%s Complete", stageDone(e.Stage))
	case PhaseFault:
		return fmt.Sprintf("%s fault: %s", title(e.Stage), e.Err)
	case PhaseHalted:
		return fmt.Sprintf("%s halted", title(e.Stage))
	case ProgramSelected:
		return fmt.Sprintf("%s selected", programTitle(e.Program))
	case ProgramCancelled:
		return fmt.Sprintf("%s cancelled", programTitle(e.Program))
	case ProgramStart:
		return fmt.Sprintf("%s Started", programTitle(e.Program))
	case ProgramComplete:
		return fmt.Sprintf("Program Complete. Total Water Used: %.2f L. Total Runtime: %d Minutes",
			e.Liters, int(e.Runtime/time.Minute))
	case ProgramFault:
		return fmt.Sprintf("%s failed: %s", programTitle(e.Program), e.Err)
	case ProgramHalted:
		return fmt.Sprintf("%s halted", programTitle(e.Program))
	}
	return string(e.Kind)
}

func title(stage string) string {
	switch stage {
	case "WASH":
		return "Wash"
	case "RINSE":
		return "Rinse"
	case "SPIN":
		return "Spin"
	case "SOAK":
		return "Soak"
	}
	return stage
}

func stageDone(stage string) string {
	switch stage {
	case "WASH":
		return "Washing"
	case "RINSE":
		return "Rinsing"
	case "SPIN":
		return "Spinning"
	case "SOAK":
		return "Soaking"
	}
	return stage
}

func programTitle(p string) string {
	switch p {
	case "WASH_ONLY":
		return "Wash Only"
	case "RINSE_ONLY":
		return "Rinse Only"
	case "SPIN_ONLY":
		return "Spin Only"
	case "COMPLETE":
		return "Complete Wash"
	case "SOAK_ONLY":
		return "Soak"
	}
	return p
}

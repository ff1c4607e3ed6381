// Package program composes cycle stages into the user-selectable programs
// and aggregates water use and runtime for each run.
package program

import (
	"time"

	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/input"
)

var sequences = map[input.Mode][]cycle.Stage{
	input.ModeWash:     {cycle.StageWash, cycle.StageSpin},
	input.ModeRinse:    {cycle.StageRinse, cycle.StageSpin},
	input.ModeSpin:     {cycle.StageSpin},
	input.ModeComplete: {cycle.StageWash, cycle.StageSpin, cycle.StageRinse, cycle.StageSpin},
	input.ModeSoak:     {cycle.StageSoak},
}

// Sequence returns the stages of program m, or nil for ModeNone.
func Sequence(m input.Mode) []cycle.Stage {
	return append([]cycle.Stage(nil), sequences[m]...)
}

// Description is what the display shows during the confirm window.
type Description struct {
	Title  string
	Detail string
}

var descriptions = map[input.Mode]Description{
	input.ModeWash:     {"Wash Only", "Time: 30 Min"},
	input.ModeRinse:    {"Rinse Only", "Time: 30 Min"},
	input.ModeSpin:     {"Spin Only", "Time: 10 Min"},
	input.ModeComplete: {"Complete Wash", "Time: 45 Min"},
	input.ModeSoak:     {"Soak", "Time: 15 Min"},
}

// Describe returns the display text for m.
func Describe(m input.Mode) Description {
	return descriptions[m]
}

// Outcome is how a run ended.
type Outcome string

const (
	Completed Outcome = "COMPLETED"
	Halted    Outcome = "HALTED"
	Failed    Outcome = "FAILED"
	Cancelled Outcome = "CANCELLED"
)

// Report is the record of one program run.
type Report struct {
	ID        string         `json:"id,omitempty"`
	Mode      input.Mode     `json:"mode"`
	Started   time.Time      `json:"started"`
	Runtime   time.Duration  `json:"runtime_ns"`
	Stages    []cycle.Result `json:"stages,omitempty"`
	WaterUsed float64        `json:"water_used"`
	Outcome   Outcome        `json:"outcome"`
	Err       string         `json:"error,omitempty"`
}

// RuntimeMinutes is the runtime in whole minutes.
func (r Report) RuntimeMinutes() int {
	return int(r.Runtime / time.Minute)
}

// Listener is told when runs start and finish.
type Listener interface {
	ProgramStarted(r Report)
	ProgramFinished(r Report)
}

// Package status provides a thread-safe status tracker for the washer
// daemon. It is read by the HTTP handlers, the MQTT heartbeat and the
// console, and written by the cycle controller and orchestrator.
package status

import (
	"sync"
	"time"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/input"
	"github.com/atharvap8/intelliverter/internal/program"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs          int64
	ConfirmWindowMs int64
	HeartbeatMs     int64
	FillTarget      float64
	DrainComplete   float64
	DrainDuringSpin bool
	Simulation      bool
	Broker          string
	HTTPPort        string
	DisplayCols     int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Mode      input.Mode
	Stage     cycle.Stage
	Phase     cycle.Phase
	Iteration int

	Level      float64
	LevelValid bool
	LevelAt    time.Time

	Actuators actuator.State
	Display   []string

	Current *program.Report
	Last    *program.Report
	Runs    int

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Running reports whether a program is in progress.
func (s Snapshot) Running() bool {
	return s.Current != nil || s.Stage != cycle.StageNone
}

// AwaitingBalance reports whether the spin stage waits for a confirm.
func (s Snapshot) AwaitingBalance() bool {
	return s.Phase == cycle.PhaseAwaitingBalance
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// PhaseChanged records the controller position.
func (t *Tracker) PhaseChanged(stage cycle.Stage, phase cycle.Phase) {
	t.mu.Lock()
	t.snap.Stage = stage
	t.snap.Phase = phase
	if phase == cycle.PhaseIdle {
		t.snap.Iteration = 0
	}
	t.mu.Unlock()
}

// LevelChanged records a fresh level reading.
func (t *Tracker) LevelChanged(liters float64) {
	t.mu.Lock()
	t.snap.Level = liters
	t.snap.LevelValid = true
	t.snap.LevelAt = t.now()
	t.mu.Unlock()
}

// IterationChanged records the agitation counter.
func (t *Tracker) IterationChanged(n int) {
	t.mu.Lock()
	t.snap.Iteration = n
	t.mu.Unlock()
}

// ProgramStarted records the run in progress.
func (t *Tracker) ProgramStarted(r program.Report) {
	t.mu.Lock()
	t.snap.Current = &r
	t.mu.Unlock()
}

// ProgramFinished moves the run to Last.
func (t *Tracker) ProgramFinished(r program.Report) {
	t.mu.Lock()
	t.snap.Current = nil
	t.snap.Last = &r
	t.snap.Runs++
	t.mu.Unlock()
}

// Update sets the polled values: outputs, selected mode and display
// contents. Called from the daemon's status loop on every tick.
func (t *Tracker) Update(act actuator.State, mode input.Mode, display []string) {
	t.mu.Lock()
	t.snap.Actuators = act
	t.snap.Mode = mode
	t.snap.Display = display
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Display = append([]string(nil), s.Display...)
	s.Now = t.now()
	return s
}

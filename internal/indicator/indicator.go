// Package indicator drives the front-panel LEDs: the active stage LED
// blinks, the network LED blinks while the spin waits for the operator and
// is otherwise lit when the broker connection is up.
package indicator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/gpio"
	"github.com/atharvap8/intelliverter/internal/input"
	"github.com/atharvap8/intelliverter/internal/program"
)

// Blink is the half period of every blinking LED.
const Blink = 500 * time.Millisecond

// LampTestDuration is how long the boot lamp test holds the LEDs on.
const LampTestDuration = 2500 * time.Millisecond

var stageLEDs = map[cycle.Stage]gpio.Line{
	cycle.StageSoak:  gpio.LEDSoak,
	cycle.StageWash:  gpio.LEDWash,
	cycle.StageRinse: gpio.LEDRinse,
	cycle.StageSpin:  gpio.LEDSpin,
}

// Panel lists the lines the indicator owns.
var Panel = []gpio.Line{gpio.LEDSoak, gpio.LEDWash, gpio.LEDRinse, gpio.LEDSpin, gpio.LEDNetwork}

// Output is the part of gpio.Writer the indicator needs.
type Output interface {
	Set(line gpio.Line, on bool) error
}

// State is what the LEDs reflect.
type State struct {
	Mode      input.Mode
	Stage     cycle.Stage
	Awaiting  bool
	Connected bool
	// Done holds stages finished earlier in a complete program.
	Done map[cycle.Stage]bool
}

// Frame returns the LED levels for st. lit is the blink phase.
func Frame(st State, lit bool) map[gpio.Line]bool {
	f := make(map[gpio.Line]bool, len(Panel))
	for _, l := range Panel {
		f[l] = false
	}
	if st.Mode == input.ModeComplete {
		for s, done := range st.Done {
			if done && s != st.Stage {
				f[stageLEDs[s]] = true
			}
		}
	}
	if l, ok := stageLEDs[st.Stage]; ok {
		f[l] = lit
	}
	if st.Awaiting {
		f[gpio.LEDNetwork] = lit
	} else {
		f[gpio.LEDNetwork] = st.Connected
	}
	return f
}

// Indicator tracks the controller and orchestrator and renders frames.
// It implements cycle.Observer and program.Listener.
type Indicator struct {
	out       Output
	clock     clock.Clock
	connected func() bool
	log       *zap.SugaredLogger

	mu   sync.Mutex
	st   State
	last map[gpio.Line]bool
}

// New creates an Indicator. connected may be nil.
func New(out Output, clk clock.Clock, connected func() bool, log *zap.SugaredLogger) *Indicator {
	if connected == nil {
		connected = func() bool { return false }
	}
	return &Indicator{
		out:       out,
		clock:     clk,
		connected: connected,
		log:       log,
		st:        State{Done: map[cycle.Stage]bool{}},
	}
}

// PhaseChanged records the active stage and balance wait.
func (i *Indicator) PhaseChanged(stage cycle.Stage, phase cycle.Phase) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.st.Awaiting = phase == cycle.PhaseAwaitingBalance
	switch {
	case phase == cycle.PhaseComplete:
		// spin runs twice in a complete program and is never held lit
		if stage != cycle.StageSpin {
			i.st.Done[stage] = true
		}
		i.st.Stage = cycle.StageNone
	default:
		i.st.Stage = stage
	}
}

// LevelChanged is ignored.
func (i *Indicator) LevelChanged(float64) {}

// IterationChanged is ignored.
func (i *Indicator) IterationChanged(int) {}

// ProgramStarted resets the completed-stage set.
func (i *Indicator) ProgramStarted(r program.Report) {
	i.mu.Lock()
	i.st.Mode = r.Mode
	i.st.Done = map[cycle.Stage]bool{}
	i.mu.Unlock()
}

// ProgramFinished returns the panel to idle.
func (i *Indicator) ProgramFinished(program.Report) {
	i.mu.Lock()
	i.st = State{Done: map[cycle.Stage]bool{}}
	i.mu.Unlock()
}

// State returns the tracked state.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	st := i.st
	st.Done = make(map[cycle.Stage]bool, len(i.st.Done))
	for k, v := range i.st.Done {
		st.Done[k] = v
	}
	st.Connected = i.connected()
	return st
}

// Run renders a frame every Blink until ctx is done, then turns the panel off.
func (i *Indicator) Run(ctx context.Context) error {
	lit := false
	for {
		lit = !lit
		i.apply(Frame(i.State(), lit))
		if err := i.clock.Sleep(ctx, Blink); err != nil {
			i.apply(Frame(State{}, false))
			return nil
		}
	}
}

// apply writes only the lines whose level changed.
func (i *Indicator) apply(f map[gpio.Line]bool) {
	for _, l := range Panel {
		on := f[l]
		if prev, ok := i.last[l]; ok && prev == on {
			continue
		}
		if err := i.out.Set(l, on); err != nil {
			i.log.Warnw("indicator write failed", "line", l, "err", err)
			continue
		}
		if i.last == nil {
			i.last = make(map[gpio.Line]bool, len(Panel))
		}
		i.last[l] = on
	}
}

// LampTest lights every LED for LampTestDuration, then turns them off.
func LampTest(ctx context.Context, out Output, clk clock.Clock) error {
	for _, l := range Panel {
		if err := out.Set(l, true); err != nil {
			return err
		}
	}
	err := clk.Sleep(ctx, LampTestDuration)
	for _, l := range Panel {
		if serr := out.Set(l, false); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

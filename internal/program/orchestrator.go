package program

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/input"
	"github.com/atharvap8/intelliverter/internal/notify"
)

// ErrNoProgram is returned by Execute when nothing runnable is selected.
var ErrNoProgram = errors.New("no program selected")

// Config holds the orchestrator timings.
type Config struct {
	// ConfirmWindow is how long a selection waits before it starts. A
	// repeated press or a halt within the window cancels it.
	ConfirmWindow time.Duration
	// Poll is how often the window checks for a cancel.
	Poll time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{ConfirmWindow: 10 * time.Second, Poll: 100 * time.Millisecond}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Controller *cycle.Controller
	Selector   *input.Selector
	Clock      clock.Clock
	Sink       notify.Sink
	Display    cycle.Display
	Listeners  []Listener
	Log        *zap.SugaredLogger
}

// Orchestrator consumes the selected mode and runs programs one at a time.
type Orchestrator struct {
	ctl   *cycle.Controller
	sel   *input.Selector
	clock clock.Clock
	sink  notify.Sink
	disp  cycle.Display
	ls    []Listener
	log   *zap.SugaredLogger
	cfg   Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	current *Report
	last    *Report
}

// New creates an Orchestrator.
func New(d Deps, cfg Config) *Orchestrator {
	o := &Orchestrator{
		ctl:   d.Controller,
		sel:   d.Selector,
		clock: d.Clock,
		sink:  d.Sink,
		disp:  d.Display,
		ls:    d.Listeners,
		log:   d.Log,
		cfg:   cfg,
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	if o.sink == nil {
		o.sink = notify.Discard
	}
	if o.cfg.Poll <= 0 {
		o.cfg.Poll = DefaultConfig().Poll
	}
	return o
}

// Running reports whether a program or stage is active.
func (o *Orchestrator) Running() bool { return o.ctl.Gate().Running() }

// AwaitingBalance reports whether the spin stage waits for a confirm.
func (o *Orchestrator) AwaitingBalance() bool { return o.ctl.AwaitingBalance() }

// Confirm releases the balance wait.
func (o *Orchestrator) Confirm() { o.ctl.Confirm() }

// Halt stops the running program and drops any pending selection.
func (o *Orchestrator) Halt() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.sel.Clear()
}

// Current returns the run in progress.
func (o *Orchestrator) Current() (Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Report{}, false
	}
	return *o.current, true
}

// Last returns the most recently finished run.
func (o *Orchestrator) Last() (Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Report{}, false
	}
	return *o.last, true
}

// Serve waits for selections and executes them until ctx is done.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.Idle()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.sel.Changed():
		}
		if o.sel.Mode() == input.ModeNone {
			continue
		}
		rep, err := o.Execute(ctx)
		if err != nil {
			o.log.Warnw("selection not executed", "err", err)
			continue
		}
		o.log.Infow("program finished", "mode", rep.Mode, "outcome", rep.Outcome,
			"water_used", rep.WaterUsed, "runtime", rep.Runtime)
	}
}

// Execute runs the confirm window for the current selection and then, if
// it was not cancelled, the program. The selection is always cleared.
func (o *Orchestrator) Execute(ctx context.Context) (Report, error) {
	m, seq := o.sel.Load()
	stages := Sequence(m)
	if len(stages) == 0 {
		o.sel.Clear()
		return Report{Mode: m}, fmt.Errorf("%w: %s", ErrNoProgram, m)
	}

	o.emit(ctx, notify.Event{Kind: notify.ProgramSelected, Program: m.String()})
	d := Describe(m)
	o.screen(d.Title, d.Detail)

	if !o.window(ctx, seq) {
		return o.cancelled(ctx, m), nil
	}
	return o.run(ctx, m, seq, stages), nil
}

func (o *Orchestrator) cancelled(ctx context.Context, m input.Mode) Report {
	o.log.Infow("selection cancelled", "mode", m)
	o.emit(ctx, notify.Event{Kind: notify.ProgramCancelled, Program: m.String()})
	o.sel.Clear()
	o.Idle()
	return Report{Mode: m, Outcome: Cancelled}
}

// window waits out the confirm window. It fails if the selection changes.
func (o *Orchestrator) window(ctx context.Context, seq uint32) bool {
	deadline := o.clock.Now().Add(o.cfg.ConfirmWindow)
	for {
		left := deadline.Sub(o.clock.Now())
		if left <= 0 {
			return true
		}
		if err := o.clock.Sleep(ctx, min(o.cfg.Poll, left)); err != nil {
			return false
		}
		if _, s := o.sel.Load(); s != seq {
			return false
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, m input.Mode, seq uint32, stages []cycle.Stage) Report {
	gate := o.ctl.Gate()
	gate.Enter()
	defer gate.Exit()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()
	// a press or halt between the window and taking the gate
	if _, s := o.sel.Load(); s != seq {
		return o.cancelled(ctx, m)
	}

	rep := Report{ID: uuid.NewString(), Mode: m, Started: o.clock.Now()}
	runCtx = notify.WithRun(runCtx, notify.Run{ID: rep.ID, Program: m.String()})
	o.started(rep)
	o.log.Infow("program started", "mode", m, "run_id", rep.ID, "stages", stages)
	o.emit(runCtx, notify.Event{Kind: notify.ProgramStart})

	var err error
	for _, st := range stages {
		res, serr := o.ctl.Run(runCtx, st)
		rep.Stages = append(rep.Stages, res)
		rep.WaterUsed += res.WaterUsed
		if serr != nil {
			err = serr
			break
		}
	}
	rep.Runtime = o.clock.Now().Sub(rep.Started)

	switch {
	case err == nil:
		rep.Outcome = Completed
		o.emit(runCtx, notify.Event{Kind: notify.ProgramComplete, Liters: rep.WaterUsed, Runtime: rep.Runtime})
	case errors.Is(err, cycle.ErrHalted):
		rep.Outcome = Halted
		o.emit(runCtx, notify.Event{Kind: notify.ProgramHalted, Liters: rep.WaterUsed, Runtime: rep.Runtime})
	default:
		rep.Outcome = Failed
		rep.Err = err.Error()
		o.log.Errorw("program failed", "mode", m, "run_id", rep.ID, "err", err)
		o.emit(runCtx, notify.Event{Kind: notify.ProgramFault, Liters: rep.WaterUsed, Runtime: rep.Runtime, Err: rep.Err})
	}

	o.sel.Clear()
	o.finished(rep)
	o.Idle()
	return rep
}

func (o *Orchestrator) started(rep Report) {
	o.mu.Lock()
	o.current = &rep
	o.mu.Unlock()
	for _, l := range o.ls {
		l.ProgramStarted(rep)
	}
}

func (o *Orchestrator) finished(rep Report) {
	o.mu.Lock()
	o.current = nil
	o.last = &rep
	o.mu.Unlock()
	for _, l := range o.ls {
		l.ProgramFinished(rep)
	}
}

// Idle shows the program prompt.
func (o *Orchestrator) Idle() {
	o.screen("Please Select", "A Program")
}

func (o *Orchestrator) screen(top, bottom string) {
	if o.disp == nil {
		return
	}
	o.disp.Clear()
	o.disp.SetCursor(1, 0)
	o.disp.Print(top)
	o.disp.SetCursor(1, 1)
	o.disp.Print(bottom)
}

func (o *Orchestrator) emit(ctx context.Context, ev notify.Event) {
	ev.Time = o.clock.Now()
	o.sink.Report(notify.Stamp(ctx, ev))
}

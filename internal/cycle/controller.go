package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/level"
	"github.com/atharvap8/intelliverter/internal/notify"
)

// Display is the character surface the controller writes status to.
type Display interface {
	Clear()
	SetCursor(col, row int)
	Print(s string)
}

// Observer is told about phase, level and iteration changes. Calls are made
// from the controller goroutine and must return quickly.
type Observer interface {
	PhaseChanged(stage Stage, phase Phase)
	LevelChanged(liters float64)
	IterationChanged(n int)
}

// Deps are the collaborators of a Controller. Bank, Level and Log are
// required.
type Deps struct {
	Bank      *actuator.Bank
	Level     *level.Adapter
	Clock     clock.Clock
	Sink      notify.Sink
	Display   Display
	Observers []Observer
	Gate      *Gate
	Log       *zap.SugaredLogger
}

// Result summarises one stage execution.
type Result struct {
	Stage     Stage
	Started   time.Time
	Duration  time.Duration
	WaterUsed float64
}

// Controller runs one stage at a time.
type Controller struct {
	bank  *actuator.Bank
	lvl   *level.Adapter
	clock clock.Clock
	sink  notify.Sink
	disp  Display
	obs   []Observer
	gate  *Gate
	log   *zap.SugaredLogger
	prof  Profile

	confirm Signal
	busy    atomic.Bool

	mu     sync.Mutex
	stage  Stage
	phase  Phase
	cursor int
}

// New creates a Controller.
func New(d Deps, prof Profile) *Controller {
	c := &Controller{
		bank:  d.Bank,
		lvl:   d.Level,
		clock: d.Clock,
		sink:  d.Sink,
		disp:  d.Display,
		obs:   d.Observers,
		gate:  d.Gate,
		log:   d.Log,
		prof:  prof,
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.sink == nil {
		c.sink = notify.Discard
	}
	if c.disp == nil {
		c.disp = blank{}
	}
	if c.gate == nil {
		c.gate = &Gate{}
	}
	return c
}

// Gate returns the running gate shared with the orchestrator.
func (c *Controller) Gate() *Gate { return c.gate }

// Profile returns the timings in use.
func (c *Controller) Profile() Profile { return c.prof }

// Current returns the active stage and phase.
func (c *Controller) Current() (Stage, Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage, c.phase
}

// AwaitingBalance reports whether the spin stage waits for a confirm.
func (c *Controller) AwaitingBalance() bool {
	_, p := c.Current()
	return p == PhaseAwaitingBalance
}

// Confirm releases the balance wait. A confirm raised before the wait
// begins is discarded when it does.
func (c *Controller) Confirm() {
	c.confirm.Fire()
}

// Run executes stage.
func (c *Controller) Run(ctx context.Context, stage Stage) (Result, error) {
	switch stage {
	case StageWash:
		return c.Wash(ctx)
	case StageRinse:
		return c.Rinse(ctx)
	case StageSpin:
		return c.Spin(ctx)
	case StageSoak:
		return c.Soak(ctx)
	}
	return Result{Stage: stage}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
}

// Wash fills, agitates, tops up and agitates again.
func (c *Controller) Wash(ctx context.Context) (Result, error) {
	return c.run(ctx, StageWash, c.wash)
}

// Rinse fills and agitates.
func (c *Controller) Rinse(ctx context.Context) (Result, error) {
	return c.run(ctx, StageRinse, c.rinse)
}

// Spin drains, waits for the operator to confirm the load is balanced,
// spins, then coasts and brakes.
func (c *Controller) Spin(ctx context.Context) (Result, error) {
	return c.run(ctx, StageSpin, c.spin)
}

// Soak fills and agitates gently for a fixed number of iterations.
func (c *Controller) Soak(ctx context.Context) (Result, error) {
	return c.run(ctx, StageSoak, c.soak)
}

// run wraps a stage body with all-stop on entry and exit, the running gate
// and fault reporting. Cancelling ctx is a halt.
func (c *Controller) run(ctx context.Context, stage Stage, body func(context.Context, *Result) error) (Result, error) {
	res := Result{Stage: stage}
	if !c.busy.CompareAndSwap(false, true) {
		return res, ErrBusy
	}
	defer c.busy.Store(false)
	c.gate.Enter()
	defer c.gate.Exit()

	res.Started = c.clock.Now()
	c.begin(stage)
	defer c.reset()

	err := c.bank.AllStop()
	if err == nil {
		c.log.Infow("stage started", "stage", stage)
		c.emit(ctx, notify.Event{Kind: notify.PhaseStart, Stage: string(stage)})
		err = body(ctx, &res)
	}
	if stopErr := c.bank.AllStop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if err == nil {
		err = c.advance(PhaseComplete)
	}
	res.Duration = c.clock.Now().Sub(res.Started)

	if err == nil {
		c.log.Infow("stage complete", "stage", stage, "water_used", res.WaterUsed, "duration", res.Duration)
		c.emit(ctx, notify.Event{Kind: notify.PhaseComplete, Stage: string(stage), Liters: res.WaterUsed, Runtime: res.Duration})
		return res, nil
	}

	_, phase := c.Current()
	f := &Fault{Stage: stage, Phase: phase, Err: err}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		f.Err = ErrHalted
		c.log.Infow("stage halted", "stage", stage, "phase", phase)
		c.emit(ctx, notify.Event{Kind: notify.PhaseHalted, Stage: string(stage)})
	} else {
		c.log.Errorw("stage fault", "stage", stage, "phase", phase, "err", err)
		c.emit(ctx, notify.Event{Kind: notify.PhaseFault, Stage: string(stage), Err: err.Error()})
	}
	return res, f
}

func (c *Controller) begin(stage Stage) {
	c.mu.Lock()
	c.stage, c.phase, c.cursor = stage, PhaseIdle, -1
	c.mu.Unlock()
	c.notifyPhase(stage, PhaseIdle)
}

func (c *Controller) reset() {
	c.mu.Lock()
	c.stage, c.phase, c.cursor = StageNone, PhaseIdle, -1
	c.mu.Unlock()
	c.notifyPhase(StageNone, PhaseIdle)
}

// advance moves to p, which must be the next phase of the stage's plan.
func (c *Controller) advance(p Phase) error {
	c.mu.Lock()
	plan := plans[c.stage]
	next := c.cursor + 1
	if next >= len(plan) || plan[next] != p {
		from := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrTransition, from, p)
	}
	c.cursor, c.phase = next, p
	stage := c.stage
	c.mu.Unlock()

	c.log.Debugw("phase", "stage", stage, "phase", p)
	c.notifyPhase(stage, p)
	return nil
}

func (c *Controller) notifyPhase(stage Stage, p Phase) {
	for _, o := range c.obs {
		o.PhaseChanged(stage, p)
	}
}

func (c *Controller) emit(ctx context.Context, ev notify.Event) {
	ev.Time = c.clock.Now()
	c.sink.Report(notify.Stamp(ctx, ev))
}

type blank struct{}

func (blank) Clear()            {}
func (blank) SetCursor(int, int) {}
func (blank) Print(string)      {}

package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/notify"
)

// iterationPeriod derives the displayed iteration counter of timed
// agitation.
const iterationPeriod = 12 * time.Second

func (c *Controller) wash(ctx context.Context, res *Result) error {
	p := c.prof
	if err := c.advance(PhaseFilling); err != nil {
		return err
	}
	c.levelScreen("Filling Water..", "WASH")
	liters, err := c.fill(ctx, p.FillTarget)
	if err != nil {
		return err
	}
	res.WaterUsed = liters
	c.emit(ctx, notify.Event{Kind: notify.FillComplete, Stage: string(StageWash), Liters: liters})
	c.screen("Water Filled", fmt.Sprintf("Value: %.1f L", liters))
	if err := c.clock.Sleep(ctx, p.WashSettle); err != nil {
		return err
	}

	if err := c.advance(PhaseAgitating); err != nil {
		return err
	}
	c.screen("Washing... PH1", "")
	if err := c.agitate(ctx, p.Wash1); err != nil {
		return err
	}

	if err := c.advance(PhaseAdjustingLevel); err != nil {
		return err
	}
	c.levelScreen("Adjusting Water", "LEVEL")
	if _, err := c.fill(ctx, p.FillTarget+p.AdjustMargin); err != nil {
		return err
	}

	if err := c.advance(PhaseAgitating); err != nil {
		return err
	}
	c.screen("Washing... PH2", "")
	if err := c.agitate(ctx, p.Wash2); err != nil {
		return err
	}

	c.screen("Washing", "Complete")
	return c.clock.Sleep(ctx, p.WashHold)
}

func (c *Controller) rinse(ctx context.Context, res *Result) error {
	p := c.prof
	if err := c.advance(PhaseFilling); err != nil {
		return err
	}
	c.levelScreen("Filling Water..", "RINSE")
	liters, err := c.fill(ctx, p.FillTarget)
	if err != nil {
		return err
	}
	res.WaterUsed = liters
	c.emit(ctx, notify.Event{Kind: notify.FillComplete, Stage: string(StageRinse), Liters: liters})
	c.screen("Water Filled", fmt.Sprintf("Value: %.1f L", liters))
	if err := c.clock.Sleep(ctx, p.RinseSettle); err != nil {
		return err
	}

	if err := c.advance(PhaseAgitating); err != nil {
		return err
	}
	c.screen("Rinsing...", "")
	if err := c.agitate(ctx, p.Rinse); err != nil {
		return err
	}

	c.screen("Rinsing", "Complete")
	return c.clock.Sleep(ctx, p.RinseHold)
}

func (c *Controller) soak(ctx context.Context, res *Result) error {
	p := c.prof
	if err := c.advance(PhaseFilling); err != nil {
		return err
	}
	c.levelScreen("Filling Water..", "SOAK")
	liters, err := c.fill(ctx, p.FillTarget)
	if err != nil {
		return err
	}
	res.WaterUsed = liters
	c.emit(ctx, notify.Event{Kind: notify.FillComplete, Stage: string(StageSoak), Liters: liters})

	if err := c.advance(PhaseAgitating); err != nil {
		return err
	}
	c.screen("Soaking...", "")
	if err := c.agitate(ctx, p.Soak); err != nil {
		return err
	}
	c.screen("Soaking", "Complete")
	return nil
}

func (c *Controller) spin(ctx context.Context, res *Result) error {
	if err := c.advance(PhaseDraining); err != nil {
		return err
	}
	c.levelScreen("Draining Water", "DRAIN")
	liters, err := c.drain(ctx)
	if err != nil {
		return err
	}
	c.emit(ctx, notify.Event{Kind: notify.DrainComplete, Stage: string(StageSpin), Liters: liters})
	if err := c.clock.Sleep(ctx, c.prof.Spin.PostDrain); err != nil {
		return err
	}

	c.confirm.Clear()
	if err := c.advance(PhaseAwaitingBalance); err != nil {
		return err
	}
	if err := c.awaitBalance(ctx); err != nil {
		return err
	}

	if err := c.advance(PhaseSpinning); err != nil {
		return err
	}
	return c.spinUp(ctx)
}

// fill holds the inlet open until the averaged level reaches target. The
// valve is not touched when the level already satisfies the target, and
// is never opened while the level is unknown.
func (c *Controller) fill(ctx context.Context, target float64) (float64, error) {
	deadline := c.clock.Now().Add(c.prof.FillTimeout)
	for {
		liters, err := c.readLevel(ctx)
		if ctx.Err() != nil {
			return liters, ctx.Err()
		}
		if err == nil && liters >= target {
			return liters, c.bank.SetInletValve(false)
		}
		if !c.clock.Now().Before(deadline) {
			return liters, fmt.Errorf("%w: %.1f of %.1f L after %s", ErrFillTimeout, liters, target, c.prof.FillTimeout)
		}
		if err != nil {
			c.log.Warnw("level unavailable during fill", "err", err)
		} else if err := c.bank.SetInletValve(true); err != nil {
			return liters, err
		}
		if err := c.clock.Sleep(ctx, c.prof.Poll); err != nil {
			return liters, err
		}
	}
}

// drain runs both drain motors until the averaged level falls to the drain
// threshold. The motors stay on for the rest of the spin stage.
func (c *Controller) drain(ctx context.Context) (float64, error) {
	if err := c.bank.SetDrainMotor(actuator.WashStage, true); err != nil {
		return 0, err
	}
	if err := c.bank.SetDrainMotor(actuator.SpinStage, true); err != nil {
		return 0, err
	}
	if err := c.clock.Sleep(ctx, c.prof.Spin.Settle); err != nil {
		return 0, err
	}
	deadline := c.clock.Now().Add(c.prof.DrainTimeout)
	for {
		liters, err := c.readLevel(ctx)
		if ctx.Err() != nil {
			return liters, ctx.Err()
		}
		if err == nil && liters <= c.prof.DrainComplete {
			return liters, nil
		}
		if err != nil {
			c.log.Warnw("level unavailable during drain", "err", err)
		}
		if !c.clock.Now().Before(deadline) {
			return liters, fmt.Errorf("%w: %.1f L above %.1f L after %s", ErrDrainTimeout, liters, c.prof.DrainComplete, c.prof.DrainTimeout)
		}
		if err := c.clock.Sleep(ctx, c.prof.Poll); err != nil {
			return liters, err
		}
	}
}

// awaitBalance blocks until Confirm is called after entry. It has no
// timeout; only a halt ends it otherwise.
func (c *Controller) awaitBalance(ctx context.Context) error {
	c.log.Infow("waiting for balance confirmation")
	c.emit(ctx, notify.Event{Kind: notify.AwaitingBalance, Stage: string(StageSpin)})
	c.screen("Press Start", "Once Balanced")
	for !c.confirm.Take() {
		if err := c.clock.Sleep(ctx, c.prof.Poll); err != nil {
			return err
		}
	}
	c.log.Infow("balance confirmed")
	return nil
}

// spinUp drives the drum at the spin level, then coasts and brakes. With
// BrakeOnHalt set the coast and brake also run after a halt, on a context
// that cannot be cancelled.
func (c *Controller) spinUp(ctx context.Context) error {
	t := c.prof.Spin
	if err := c.clock.Sleep(ctx, t.PreSpin); err != nil {
		return err
	}
	if c.bank.DrainSpinPermitted() {
		if err := c.bank.PermitDrainSpin(); err != nil {
			return err
		}
	} else {
		if err := c.bank.SetDrainMotor(actuator.WashStage, false); err != nil {
			return err
		}
		if err := c.bank.SetDrainMotor(actuator.SpinStage, false); err != nil {
			return err
		}
	}
	if err := c.bank.SetInverterPower(true); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, t.PreSpin); err != nil {
		return err
	}
	if err := c.bank.SetDriveLevel(t.Level); err != nil {
		return err
	}
	c.screen("Spinning....", "")

	spinErr := c.clock.Sleep(ctx, t.SpinUp)
	if spinErr != nil && !t.BrakeOnHalt {
		return spinErr
	}
	if err := c.stopDrum(context.WithoutCancel(ctx)); err != nil {
		if spinErr == nil {
			return err
		}
		c.log.Errorw("brake after halt failed", "err", err)
	}
	return spinErr
}

func (c *Controller) stopDrum(ctx context.Context) error {
	t := c.prof.Spin
	if err := c.bank.SetDriveLevel(0); err != nil {
		return err
	}
	if err := c.bank.SetInverterPower(false); err != nil {
		return err
	}
	c.screen("Braking...", "")
	if err := c.clock.Sleep(ctx, t.Coast); err != nil {
		return err
	}
	if err := c.bank.SetBrake(true); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, t.Brake); err != nil {
		return err
	}
	return c.bank.SetBrake(false)
}

// agitate alternates the drum direction at a fixed drive level until the
// profile's duration or iteration count is reached.
func (c *Controller) agitate(ctx context.Context, a Agitation) error {
	if err := c.bank.SetInverterPower(true); err != nil {
		return err
	}
	start := c.clock.Now()
	for i := 0; a.more(i, c.clock.Now().Sub(start)); i++ {
		n := i
		if a.Iterations <= 0 {
			n = int(c.clock.Now().Sub(start)/iterationPeriod) % 10
		}
		c.showIteration(n)
		for _, reverse := range [2]bool{true, false} {
			if err := c.halfCycle(ctx, a, reverse); err != nil {
				return err
			}
		}
	}
	if err := c.bank.SetDriveLevel(0); err != nil {
		return err
	}
	if err := c.bank.SetChangeover(false); err != nil {
		return err
	}
	return c.bank.SetInverterPower(false)
}

func (a Agitation) more(i int, elapsed time.Duration) bool {
	if a.Iterations > 0 {
		return i < a.Iterations
	}
	return elapsed < a.Duration
}

func (c *Controller) halfCycle(ctx context.Context, a Agitation, reverse bool) error {
	if err := c.bank.SetDriveLevel(a.Level); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, a.Drive); err != nil {
		return err
	}
	if err := c.bank.SetDriveLevel(0); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, a.Rest); err != nil {
		return err
	}
	if err := c.bank.SetChangeover(reverse); err != nil {
		return err
	}
	return c.clock.Sleep(ctx, a.hold(reverse))
}

func (a Agitation) hold(reverse bool) time.Duration {
	if reverse && a.ReverseHold > 0 {
		return a.ReverseHold
	}
	return a.Hold
}

func (c *Controller) readLevel(ctx context.Context) (float64, error) {
	liters, err := c.lvl.ReadLitersAveraged(ctx, c.prof.Samples, c.prof.SampleDelay)
	if err != nil {
		return liters, err
	}
	for _, o := range c.obs {
		o.LevelChanged(liters)
	}
	c.disp.SetCursor(8, 1)
	c.disp.Print(fmt.Sprintf("%4.1f", liters))
	return liters, nil
}

func (c *Controller) showIteration(n int) {
	for _, o := range c.obs {
		o.IterationChanged(n)
	}
	c.disp.SetCursor(1, 1)
	c.disp.Print(fmt.Sprintf("Iteration: %d", n))
}

func (c *Controller) screen(top, bottom string) {
	c.disp.Clear()
	c.disp.SetCursor(1, 0)
	c.disp.Print(top)
	if bottom != "" {
		c.disp.SetCursor(1, 1)
		c.disp.Print(bottom)
	}
}

// levelScreen leaves room for the live level reading on the second row.
func (c *Controller) levelScreen(top, tag string) {
	c.screen(top, tag)
	c.disp.SetCursor(13, 1)
	c.disp.Print("L")
}

package cycle

import (
	"errors"
	"fmt"
	"time"
)

// Agitation is the timing of one agitation step. One iteration drives
// forward, rests, reverses, then drives, rests and reverses back.
type Agitation struct {
	// Duration bounds the step by elapsed time. Ignored when Iterations > 0.
	Duration time.Duration
	// Iterations bounds the step by a fixed count.
	Iterations int
	Drive      time.Duration
	Rest       time.Duration
	Hold       time.Duration
	// ReverseHold replaces Hold after switching into reverse. Zero means Hold.
	ReverseHold time.Duration
	Level       uint8
}

// SpinTiming is the timing of the spin stage.
type SpinTiming struct {
	Settle    time.Duration // after asserting the drains
	PostDrain time.Duration // drains kept running after the threshold
	PreSpin   time.Duration // before inverter power and again before drive
	SpinUp    time.Duration
	Level     uint8
	Coast     time.Duration
	Brake     time.Duration
	// BrakeOnHalt runs coast and brake even when the spin is halted.
	BrakeOnHalt bool
}

// Profile holds every threshold and timing the controller uses.
type Profile struct {
	FillTarget    float64
	AdjustMargin  float64
	DrainComplete float64

	Samples     int
	SampleDelay time.Duration
	Poll        time.Duration

	FillTimeout  time.Duration
	DrainTimeout time.Duration

	WashSettle  time.Duration // fill to first agitation
	RinseSettle time.Duration
	WashHold    time.Duration // "complete" screen
	RinseHold   time.Duration

	Wash1 Agitation
	Wash2 Agitation
	Rinse Agitation
	Soak  Agitation
	Spin  SpinTiming
}

// DefaultProfile returns the production timings.
func DefaultProfile() Profile {
	return Profile{
		FillTarget:    18.5,
		AdjustMargin:  2,
		DrainComplete: 2,

		Samples:     3,
		SampleDelay: 10 * time.Millisecond,
		Poll:        200 * time.Millisecond,

		FillTimeout:  10 * time.Minute,
		DrainTimeout: 5 * time.Minute,

		WashSettle:  3 * time.Second,
		RinseSettle: 500 * time.Millisecond,
		WashHold:    6 * time.Second,
		RinseHold:   15 * time.Second,

		Wash1: Agitation{Duration: 180 * time.Second, Drive: 6 * time.Second, Rest: 3 * time.Second, Hold: 3 * time.Second, Level: 200},
		Wash2: Agitation{Duration: 180 * time.Second, Drive: 45 * time.Second, Rest: 3 * time.Second, Hold: 3 * time.Second, Level: 200},
		Rinse: Agitation{Duration: 360 * time.Second, Drive: 30 * time.Second, Rest: 2500 * time.Millisecond, Hold: 2500 * time.Millisecond, Level: 200},
		Soak:  Agitation{Iterations: 50, Drive: 4 * time.Second, Rest: 2500 * time.Millisecond, Hold: 2500 * time.Millisecond, ReverseHold: 4 * time.Second, Level: 200},
		Spin: SpinTiming{
			Settle:      1 * time.Second,
			PostDrain:   15 * time.Second,
			PreSpin:     1 * time.Second,
			SpinUp:      180 * time.Second,
			Level:       50,
			Coast:       2 * time.Second,
			Brake:       40 * time.Second,
			BrakeOnHalt: true,
		},
	}
}

// Validate reports every inconsistent setting.
func (p Profile) Validate() error {
	var errs []error
	if p.FillTarget <= p.DrainComplete {
		errs = append(errs, fmt.Errorf("fill target %.1f L must be above drain threshold %.1f L", p.FillTarget, p.DrainComplete))
	}
	if p.AdjustMargin < 0 {
		errs = append(errs, errors.New("adjust margin must not be negative"))
	}
	if p.Poll <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if p.Samples < 1 {
		errs = append(errs, errors.New("samples must be at least 1"))
	}
	if p.FillTimeout <= 0 || p.DrainTimeout <= 0 {
		errs = append(errs, errors.New("fill and drain timeouts must be positive"))
	}
	for name, a := range map[string]Agitation{"wash1": p.Wash1, "wash2": p.Wash2, "rinse": p.Rinse, "soak": p.Soak} {
		if err := a.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if p.Spin.SpinUp <= 0 || p.Spin.Level == 0 {
		errs = append(errs, errors.New("spin: duration and level must be positive"))
	}
	return errors.Join(errs...)
}

func (a Agitation) validate() error {
	if a.Drive <= 0 || a.Rest < 0 || a.Hold < 0 || a.ReverseHold < 0 {
		return errors.New("drive must be positive, rest and hold not negative")
	}
	if a.Iterations <= 0 && a.Duration <= 0 {
		return errors.New("duration or iterations required")
	}
	if a.Level == 0 {
		return errors.New("drive level must be positive")
	}
	return nil
}

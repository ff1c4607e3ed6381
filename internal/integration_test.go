package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/config"
	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/display"
	"github.com/atharvap8/intelliverter/internal/gpio"
	"github.com/atharvap8/intelliverter/internal/indicator"
	"github.com/atharvap8/intelliverter/internal/input"
	"github.com/atharvap8/intelliverter/internal/level"
	"github.com/atharvap8/intelliverter/internal/metrics"
	"github.com/atharvap8/intelliverter/internal/mqtt"
	"github.com/atharvap8/intelliverter/internal/notify"
	"github.com/atharvap8/intelliverter/internal/program"
	"github.com/atharvap8/intelliverter/internal/status"
	"github.com/atharvap8/intelliverter/internal/web"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// balancer presses the halt button as soon as the spin stage waits for a
// balance confirmation, the way an operator would.
type balancer struct {
	clk    *clock.Fake
	inputs *input.Dispatcher
}

func (b *balancer) PhaseChanged(_ cycle.Stage, p cycle.Phase) {
	if p == cycle.PhaseAwaitingBalance {
		b.inputs.Press(gpio.Edge{Button: gpio.ButtonHalt, Time: b.clk.Now()})
	}
}
func (b *balancer) LevelChanged(float64) {}
func (b *balancer) IterationChanged(int) {}

// washer wires every component the daemon wires, with in-memory hardware
// and a simulated tub on a fake clock.
type washer struct {
	clk       *clock.Fake
	lines     *gpio.FakeLines
	tub       *level.Tub
	bank      *actuator.Bank
	lcd       *display.Buffer
	events    *notify.Dispatcher
	client    *mqtt.FakeClient
	tracker   *status.Tracker
	collector *metrics.Collector
	leds      *indicator.Indicator
	sel       *input.Selector
	orch      *program.Orchestrator
	inputs    *input.Dispatcher

	cancel context.CancelFunc
}

func newWasher(t *testing.T) *washer {
	t.Helper()
	log := zap.NewNop().Sugar()
	cfg := config.Default()
	cfg.Hardware.Fake = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	w := &washer{
		clk:       clock.NewFake(startTime),
		lines:     gpio.NewFakeLines(),
		lcd:       display.New(cfg.Display.Cols, cfg.Display.Rows),
		client:    mqtt.NewFakeClient(),
		collector: metrics.NewCollector(),
		sel:       input.NewSelector(),
	}
	w.client.Connected = true
	w.tub = level.NewTub(w.clk, cfg.Calibration(), func() (bool, bool) {
		return w.lines.Get(gpio.InletValve), w.lines.Get(gpio.WashDrain) || w.lines.Get(gpio.SpinDrain)
	})
	w.bank = actuator.NewBank(w.lines, gpio.NewFakeDriver(), cfg.Rules(), log)
	w.tracker = status.NewTracker(startTime, status.Config{Broker: cfg.MQTT.Broker, FillTarget: cfg.Levels.FillTarget})

	w.events = notify.NewDispatcher(256, log)
	w.events.Add("mqtt", w.client)
	w.events.Add("metrics", w.collector)
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.events.Run(ctx)
	t.Cleanup(cancel)

	w.leds = indicator.New(w.lines, w.clk, w.client.IsConnected, log)

	prof := cfg.Profile()
	prof.Samples = 1
	prof.SampleDelay = 0
	bal := &balancer{clk: w.clk}
	ctl := cycle.New(cycle.Deps{
		Bank:      w.bank,
		Level:     level.NewAdapter(w.tub, cfg.Calibration(), w.clk, log),
		Clock:     w.clk,
		Sink:      w.events,
		Display:   w.lcd,
		Observers: []cycle.Observer{w.tracker, w.leds, w.collector, bal},
		Log:       log,
	}, prof)

	w.orch = program.New(program.Deps{
		Controller: ctl,
		Selector:   w.sel,
		Clock:      w.clk,
		Sink:       w.events,
		Display:    w.lcd,
		Listeners:  []program.Listener{w.tracker, w.leds, w.collector},
		Log:        log,
	}, cfg.ProgramConfig())
	w.inputs = input.NewDispatcher(w.sel, w.orch, cfg.Wiring.Lockout, log)
	bal.inputs = w.inputs

	if err := w.client.HandleCommands(w.inputs.Execute); err != nil {
		t.Fatalf("HandleCommands: %v", err)
	}
	return w
}

// flush stops the notification dispatcher and waits for it to deliver
// everything queued.
func (w *washer) flush(t *testing.T) {
	t.Helper()
	w.cancel()
	select {
	case <-w.events.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("notification dispatcher did not drain")
	}
}

func kinds(events []notify.Event) []notify.Kind {
	out := make([]notify.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// inOrder reports whether want appears in got as a subsequence.
func inOrder(got []notify.Kind, want ...notify.Kind) bool {
	i := 0
	for _, k := range got {
		if i < len(want) && k == want[i] {
			i++
		}
	}
	return i == len(want)
}

// TestIntegrationRemoteWashOnly runs a wash-only program selected over MQTT
// from selection to completion and checks every consumer saw it.
func TestIntegrationRemoteWashOnly(t *testing.T) {
	w := newWasher(t)

	if err := w.client.Inject([]byte(`{"command":"WASH"}`)); err != nil {
		t.Fatalf("inject wash: %v", err)
	}
	if got := w.sel.Mode(); got != input.ModeWash {
		t.Fatalf("selected mode: got %v, want WASH_ONLY", got)
	}

	rep, err := w.orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	w.flush(t)

	if rep.Outcome != program.Completed {
		t.Fatalf("outcome: got %s (%s), want COMPLETED", rep.Outcome, rep.Err)
	}
	if rep.WaterUsed < 18.5 || rep.WaterUsed > 18.6 {
		t.Errorf("water used: got %.3f, want first fill near 18.5 L", rep.WaterUsed)
	}
	if !w.bank.State().Off() {
		t.Errorf("outputs left on: %+v", w.bank.State())
	}
	if l := w.tub.Liters(); l > 2 {
		t.Errorf("tub not drained: %.2f L", l)
	}

	// MQTT
	got := kinds(w.client.Events())
	if !inOrder(got,
		notify.ProgramSelected, notify.ProgramStart,
		notify.PhaseStart, notify.FillComplete, notify.PhaseComplete,
		notify.PhaseStart, notify.DrainComplete, notify.AwaitingBalance, notify.PhaseComplete,
		notify.ProgramComplete,
	) {
		t.Errorf("event order: %v", got)
	}
	var last mqtt.EventPayload
	for i, e := range w.client.Events() {
		if e.Kind != notify.ProgramComplete {
			continue
		}
		if last, err = mqtt.ParsePayload(w.client.Payloads()[i]); err != nil {
			t.Fatalf("parse PROGRAM_COMPLETE payload: %v", err)
		}
	}
	if last.Event != "PROGRAM_COMPLETE" || last.RunID != rep.ID || last.Liters == nil || last.RuntimeMinutes == nil {
		t.Errorf("final payload: %+v", last)
	}
	if *last.RuntimeMinutes != rep.RuntimeMinutes() {
		t.Errorf("runtime minutes: got %d, want %d", *last.RuntimeMinutes, rep.RuntimeMinutes())
	}

	// status
	snap := w.tracker.Snapshot()
	if snap.Last == nil || snap.Last.ID != rep.ID || snap.Runs != 1 {
		t.Errorf("tracker last run: %+v runs=%d", snap.Last, snap.Runs)
	}
	if snap.Running() {
		t.Error("tracker still reports a running program")
	}

	// display
	lines := w.lcd.Lines()
	if lines[0] != " Please Select" || lines[1] != " A Program" {
		t.Errorf("display after run: %q", lines)
	}

	// indicator
	if st := w.leds.State(); st.Stage != cycle.StageNone {
		t.Errorf("indicator stage after run: %q", st.Stage)
	}

	// metrics
	body := scrape(t, w.collector.Handler())
	for _, want := range []string{
		`intelliverter_programs_finished_total{mode="WASH_ONLY",outcome="COMPLETED"} 1`,
		`intelliverter_events_total{kind="PROGRAM_COMPLETE"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// TestIntegrationRemoteHaltMidFill halts over MQTT while the tub fills.
func TestIntegrationRemoteHaltMidFill(t *testing.T) {
	w := newWasher(t)
	// 10s confirm window, then about 20s of filling
	w.clk.At(30*time.Second, func() {
		if err := w.client.Inject([]byte("halt")); err != nil {
			t.Errorf("inject halt: %v", err)
		}
	})

	if err := w.inputs.Execute("wash"); err != nil {
		t.Fatalf("select wash: %v", err)
	}
	rep, err := w.orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	w.flush(t)

	if rep.Outcome != program.Halted {
		t.Fatalf("outcome: got %s, want HALTED", rep.Outcome)
	}
	if !w.bank.State().Off() {
		t.Errorf("outputs left on after halt: %+v", w.bank.State())
	}
	if l := w.tub.Liters(); l <= 0 || l >= 18.5 {
		t.Errorf("tub level after halt: %.2f L", l)
	}
	if _, ok := find(w.client.Events(), notify.ProgramHalted); !ok {
		t.Errorf("no PROGRAM_HALTED in %v", kinds(w.client.Events()))
	}
	if _, ok := find(w.client.Events(), notify.ProgramComplete); ok {
		t.Error("halted run must not report PROGRAM_COMPLETE")
	}
}

// TestIntegrationRemoteCommandsRejected checks the dispatcher errors make
// it back through the MQTT handler.
func TestIntegrationRemoteCommandsRejected(t *testing.T) {
	w := newWasher(t)

	if err := w.client.Inject([]byte("dance")); !errors.Is(err, input.ErrUnknownCommand) {
		t.Errorf("unknown command: got %v", err)
	}
	if err := w.client.Inject([]byte("confirm")); !errors.Is(err, input.ErrNotAwaiting) {
		t.Errorf("confirm while idle: got %v", err)
	}
	if err := w.client.Inject([]byte("   ")); !errors.Is(err, mqtt.ErrEmptyCommand) {
		t.Errorf("blank command: got %v", err)
	}
	if w.sel.Mode() != input.ModeNone {
		t.Error("rejected commands must not select a program")
	}
}

// TestIntegrationStatusPage serves the tracker of a finished run over HTTP.
func TestIntegrationStatusPage(t *testing.T) {
	w := newWasher(t)
	if err := w.inputs.Execute("spin"); err != nil {
		t.Fatalf("select spin: %v", err)
	}
	rep, err := w.orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	w.flush(t)
	w.tracker.Update(w.bank.State(), w.sel.Mode(), w.lcd.Lines())

	srv := web.New(":0", w.tracker, w.inputs, w.collector.Handler(), zap.NewNop().Sugar())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.LastRun == nil || sj.Status.LastRun.ID != rep.ID || sj.Status.LastRun.Mode != "SPIN_ONLY" {
		t.Errorf("last_run: %+v", sj.Status.LastRun)
	}
	if len(sj.Status.Display) != 2 || sj.Status.Display[0] != " Please Select" || sj.Status.Display[1] != " A Program" {
		t.Errorf("display: %q", sj.Status.Display)
	}

	body := scrape(t, srv.Handler())
	if !strings.Contains(body, "intelliverter_programs_started_total") {
		t.Error("metrics not served through the status server")
	}
}

func find(events []notify.Event, k notify.Kind) (notify.Event, bool) {
	for _, e := range events {
		if e.Kind == k {
			return e, true
		}
	}
	return notify.Event{}, false
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

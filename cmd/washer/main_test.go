package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/config"
	"github.com/atharvap8/intelliverter/internal/gpio"
	"github.com/atharvap8/intelliverter/internal/level"
	"github.com/atharvap8/intelliverter/internal/mqtt"
	"github.com/atharvap8/intelliverter/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" {
		t.Errorf("expected empty Type/IP, got %q/%q", info.Type, info.IP)
	}
}

// --- runLoop tests ---

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func newTestTracker() *status.Tracker {
	return status.NewTracker(t0, status.Config{
		PollMs:      200,
		HeartbeatMs: (15 * time.Minute).Milliseconds(),
		Broker:      "tcp://localhost:1883",
	})
}

// runRunLoop drives runLoop with one tick per entry of ticks, then the
// signal, and returns once runLoop has returned.
func runRunLoop(t *testing.T, pub *mqtt.FakeClient, tracker *status.Tracker, refresh func(), heartbeat time.Duration, ticks []time.Time, signal os.Signal) {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runLoop(pub, pub, tracker, refresh, heartbeat, fakeClock(t0, time.Second), tick, sig, zap.NewNop().Sugar())
	}()

	for _, tm := range ticks {
		tick <- tm
	}
	sig <- signal

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after signal")
	}
}

func everyFiveMinutes(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i+1) * 5 * time.Minute)
	}
	return out
}

func decodeStatus(t *testing.T, payload []byte) status.StatusInner {
	t.Helper()
	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	return sj.Status
}

func TestRunLoopShutdownReason(t *testing.T) {
	for _, tt := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{os.Interrupt, "SIGINT"},
	} {
		pub := mqtt.NewFakeClient()
		runRunLoop(t, pub, newTestTracker(), nil, 0, nil, tt.sig)

		events := pub.SystemEvents()
		if len(events) != 1 {
			t.Fatalf("%v: expected 1 system event, got %d", tt.sig, len(events))
		}
		se := events[0]
		if se.Event != "SHUTDOWN" || se.Reason != tt.want {
			t.Errorf("%v: got %s/%s, want SHUTDOWN/%s", tt.sig, se.Event, se.Reason, tt.want)
		}
		if !se.Retained {
			t.Error("expected Retained=true for SHUTDOWN")
		}
		inner := decodeStatus(t, pub.SystemPayloads()[0])
		if inner.Event != "SHUTDOWN" || inner.Reason != tt.want {
			t.Errorf("payload: got %s/%s", inner.Event, inner.Reason)
		}
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakeClient()
	// ticks at +5m .. +20m; the 15 minute heartbeat fires once at +15m
	runRunLoop(t, pub, newTestTracker(), nil, 15*time.Minute, everyFiveMinutes(4), syscall.SIGTERM)

	var heartbeats, shutdowns int
	for i, se := range pub.SystemEvents() {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			if se.Retained {
				t.Error("HEARTBEAT should not be retained")
			}
			if !se.Timestamp.Equal(t0.Add(15 * time.Minute)) {
				t.Errorf("heartbeat timestamp: got %v", se.Timestamp)
			}
			if inner := decodeStatus(t, pub.SystemPayloads()[i]); inner.Event != "HEARTBEAT" {
				t.Errorf("payload event: got %q", inner.Event)
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	pub := mqtt.NewFakeClient()
	runRunLoop(t, pub, newTestTracker(), nil, 0, everyFiveMinutes(12), syscall.SIGTERM)

	if n := len(pub.SystemEvents()); n != 1 {
		t.Errorf("expected only SHUTDOWN, got %d system events", n)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "associated")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	pub := mqtt.NewFakeClient()
	runRunLoop(t, pub, newTestTracker(), nil, 15*time.Minute, everyFiveMinutes(3), syscall.SIGTERM)

	for i, se := range pub.SystemEvents() {
		if se.Event != "HEARTBEAT" {
			continue
		}
		inner := decodeStatus(t, pub.SystemPayloads()[i])
		if inner.Network == nil {
			t.Fatal("heartbeat payload missing network")
		}
		if inner.Network.IP != "192.168.1.42" || inner.Network.SSID != "HomeNet" {
			t.Errorf("network: got %+v", inner.Network)
		}
		return
	}
	t.Fatal("no HEARTBEAT published")
}

func TestRunLoopRefreshesTracker(t *testing.T) {
	pub := mqtt.NewFakeClient()
	pub.Connected = true
	tracker := newTestTracker()
	refreshes := 0

	runRunLoop(t, pub, tracker, func() { refreshes++ }, 0, everyFiveMinutes(3), syscall.SIGTERM)

	if refreshes != 3 {
		t.Errorf("refresh calls: got %d, want 3", refreshes)
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakeClient()
	pub.PublishSystemError = errors.New("broker unavailable")

	// the loop must still return after the failed SHUTDOWN publish
	runRunLoop(t, pub, newTestTracker(), nil, 15*time.Minute, everyFiveMinutes(4), syscall.SIGTERM)

	if n := len(pub.SystemEvents()); n != 0 {
		t.Errorf("expected no recorded events, got %d", n)
	}
}

// --- console ---

func TestCommandTable(t *testing.T) {
	names := map[string]bool{}
	for _, c := range commandTable() {
		names[c.Name] = true
		if c.Help == "" {
			t.Errorf("%s: missing help", c.Name)
		}
	}
	for _, want := range []string{"wash", "rinse", "spin", "complete", "soak", "halt", "confirm"} {
		if !names[want] {
			t.Errorf("command table missing %q", want)
		}
	}
}

func TestConsoleCommand(t *testing.T) {
	cmds := commandTable()
	tests := []struct {
		line    string
		quit    bool
		sent    []string
		output  string
		sendErr error
	}{
		{line: "", quit: false},
		{line: "quit", quit: true},
		{line: " EXIT ", quit: true},
		{line: "help", output: "confirm"},
		{line: "Wash", sent: []string{"wash"}, output: "sent wash"},
		{line: "dance", output: "unknown command"},
		{line: "halt", sent: []string{"halt"}, sendErr: errors.New("offline"), output: "send halt: offline"},
	}
	for _, tt := range tests {
		var sent []string
		var out bytes.Buffer
		send := func(name string) error {
			sent = append(sent, name)
			return tt.sendErr
		}
		quit := consoleCommand(tt.line, send, &out, cmds)
		if quit != tt.quit {
			t.Errorf("%q: quit=%v, want %v", tt.line, quit, tt.quit)
		}
		if strings.Join(sent, ",") != strings.Join(tt.sent, ",") {
			t.Errorf("%q: sent %v, want %v", tt.line, sent, tt.sent)
		}
		if !strings.Contains(out.String(), tt.output) {
			t.Errorf("%q: output %q missing %q", tt.line, out.String(), tt.output)
		}
	}
}

func TestConsoleCommandReachesDispatcher(t *testing.T) {
	pub := mqtt.NewFakeClient()
	var got []string
	pub.HandleCommands(func(name string) error {
		got = append(got, name)
		return nil
	})

	var out bytes.Buffer
	consoleCommand("soak", pub.SendCommand, &out, commandTable())

	if len(got) != 1 || got[0] != "soak" {
		t.Errorf("handler got %v", got)
	}
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(mqtt.EventPayload{
		Timestamp: "not a time",
		Event:     "PHASE_FAULT",
		Text:      "Wash Fault",
		Error:     "fill timeout",
	})
	for _, want := range []string{"[not a time]", "PHASE_FAULT", "Wash Fault", "(fill timeout)"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

// --- hardware and state ---

func TestFakeHardwareSimulatesTub(t *testing.T) {
	cfg := config.Default()
	cfg.Hardware.Fake = true
	clk := clock.NewFake(t0)

	hw, err := openHardware(cfg, clk)
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	defer hw.Close()

	if err := hw.watchButtons(cfg, func(gpio.Edge) {}); err != nil {
		t.Fatalf("watchButtons on fake hardware: %v", err)
	}

	a := level.NewAdapter(hw.sensor, cfg.Calibration(), clk, zap.NewNop().Sugar())
	if l := a.ReadLiters(); l > 0.001 || l < -0.001 {
		t.Fatalf("empty tub reads %.3f L", l)
	}
	if err := hw.lines.Set(gpio.InletValve, true); err != nil {
		t.Fatal(err)
	}
	clk.Advance(40 * time.Second)
	if l := a.ReadLiters(); l < 9.9 || l > 10.1 {
		t.Errorf("after 40s fill: got %.3f L, want 10", l)
	}
}

func TestPrintState(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.Samples = 2
	clk := clock.NewFake(t0)
	src := level.NewFakeSource((12.5 + cfg.Sensor.Offset) * cfg.Sensor.Multiplier)

	var out bytes.Buffer
	if err := printState(context.Background(), &out, cfg, src, clk, zap.NewNop().Sugar()); err != nil {
		t.Fatalf("printState: %v", err)
	}
	for _, want := range []string{"|Water Level     |", "|12.50 L         |", "Fill target: 18.50 L"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintStateSensorNotReady(t *testing.T) {
	cfg := config.Default()
	clk := clock.NewFake(t0)
	src := level.NewFakeSource()
	src.ReadError = errors.New("no response")

	var out bytes.Buffer
	err := printState(context.Background(), &out, cfg, src, clk, zap.NewNop().Sugar())
	if !errors.Is(err, level.ErrNotReady) {
		t.Errorf("got %v, want ErrNotReady", err)
	}
}

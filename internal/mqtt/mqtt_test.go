package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atharvap8/intelliverter/internal/notify"
)

var stamp = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func TestTopicsFor(t *testing.T) {
	tests := []struct {
		prefix string
		want   Topics
	}{
		{"home/washer", Topics{"home/washer/events", "home/washer/system", "home/washer/command"}},
		{"laundry/", Topics{"laundry/events", "laundry/system", "laundry/command"}},
		{"", Topics{"home/washer/events", "home/washer/system", "home/washer/command"}},
	}
	for _, tt := range tests {
		if got := TopicsFor(tt.prefix); got != tt.want {
			t.Errorf("TopicsFor(%q) = %+v, want %+v", tt.prefix, got, tt.want)
		}
	}
}

func TestFormatPayloadProgramCompleteExactJSON(t *testing.T) {
	ev := notify.Event{
		Time:    stamp,
		Kind:    notify.ProgramComplete,
		RunID:   "r1",
		Program: "COMPLETE",
		Liters:  37.5,
		Runtime: 47*time.Minute + 20*time.Second,
	}

	payload, err := FormatPayload(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"washer":{"timestamp":"2026-02-02T22:18:12Z","event":"PROGRAM_COMPLETE","run_id":"r1",` +
		`"program":"COMPLETE","liters":37.5,"runtime_minutes":47,` +
		`"text":"Program Complete. Total Water Used: 37.50 L. Total Runtime: 47 Minutes"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadLitersOnlyWhereMeaningful(t *testing.T) {
	tests := []struct {
		kind       notify.Kind
		wantLiters bool
	}{
		{notify.PhaseStart, false},
		{notify.FillComplete, true},
		{notify.DrainComplete, true},
		{notify.AwaitingBalance, false},
		{notify.PhaseComplete, false},
		{notify.PhaseFault, false},
		{notify.ProgramStart, false},
		{notify.ProgramComplete, true},
		{notify.ProgramHalted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			payload, err := FormatPayload(notify.Event{Time: stamp, Kind: tt.kind, Stage: "WASH", Liters: 0})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var parsed map[string]map[string]interface{}
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			_, has := parsed["washer"]["liters"]
			if has != tt.wantLiters {
				t.Errorf("liters present = %v, want %v", has, tt.wantLiters)
			}
			if parsed["washer"]["event"] != string(tt.kind) {
				t.Errorf("event = %v", parsed["washer"]["event"])
			}
		})
	}
}

func TestFormatPayloadFillCompleteText(t *testing.T) {
	payload, err := FormatPayload(notify.Event{Time: stamp, Kind: notify.FillComplete, Stage: "WASH", Liters: 19})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := ParsePayload(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Text != "Wash water filling complete. Filled: 19.00 L" {
		t.Errorf("text = %q", p.Text)
	}
	if p.Liters == nil || *p.Liters != 19 {
		t.Errorf("liters = %v", p.Liters)
	}
	if p.Stage != "WASH" {
		t.Errorf("stage = %q", p.Stage)
	}
}

func TestFormatPayloadFaultCarriesError(t *testing.T) {
	payload, _ := FormatPayload(notify.Event{Time: stamp, Kind: notify.ProgramFault, Program: "RINSE_ONLY", Err: "fill timeout"})
	p, err := ParsePayload(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Error != "fill timeout" {
		t.Errorf("error = %q", p.Error)
	}
	if p.Text != "Rinse Only failed: fill timeout" {
		t.Errorf("text = %q", p.Text)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ev := notify.Event{Time: time.Date(2026, 2, 3, 3, 48, 12, 0, loc), Kind: notify.PhaseStart, Stage: "SPIN"}

	p, err := ParsePayload(mustFormat(t, ev))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp not converted to UTC: %s", p.Timestamp)
	}
}

func mustFormat(t *testing.T, ev notify.Event) []byte {
	t.Helper()
	b, err := FormatPayload(ev)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return b
}

func TestParsePayloadInvalid(t *testing.T) {
	if _, err := ParsePayload([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"wash", "wash", false},
		{"  HALT\n", "halt", false},
		{`{"command":"Spin"}`, "spin", false},
		{`{"command":" "}`, "", true},
		{"", "", true},
		{`{"command":`, "", true},
	}
	for _, tt := range tests {
		got, err := ParseCommand([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCommand(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseCommand([]byte("   ")); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("blank payload err = %v, want ErrEmptyCommand", err)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	tests := []struct {
		name  string
		event SystemEvent
		want  string
	}{
		{
			"will",
			SystemEvent{Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"},
			`{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`,
		},
		{
			"reconnected omits reason",
			SystemEvent{Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC), Event: "RECONNECTED"},
			`{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.want {
				t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, tt.want)
			}
		})
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not returned verbatim: %s", payload)
	}
}

func TestFakeClientRecordsEvents(t *testing.T) {
	f := NewFakeClient()
	evs := []notify.Event{
		{Time: stamp, Kind: notify.ProgramStart, Program: "WASH_ONLY"},
		{Time: stamp, Kind: notify.PhaseStart, Stage: "WASH"},
		{Time: stamp, Kind: notify.FillComplete, Stage: "WASH", Liters: 18.5},
	}
	for _, ev := range evs {
		if err := f.Report(ev); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	got := f.Events()
	if len(got) != len(evs) {
		t.Fatalf("expected %d events, got %d", len(evs), len(got))
	}
	for i := range evs {
		if got[i] != evs[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], evs[i])
		}
	}
	if len(f.Payloads()) != len(evs) {
		t.Errorf("expected %d payloads", len(evs))
	}
}

func TestFakeClientErrors(t *testing.T) {
	f := NewFakeClient()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Report(notify.Event{Kind: notify.PhaseStart}); err == nil {
		t.Error("expected report error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected system error")
	}
	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakeClientRecordsRetainedFlag(t *testing.T) {
	f := NewFakeClient()
	f.PublishSystem(SystemEvent{Timestamp: stamp, Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: stamp, Event: "HEARTBEAT"})

	got := f.SystemEvents()
	if len(got) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(got))
	}
	if !got[0].Retained || got[1].Retained {
		t.Errorf("retained flags = %v, %v", got[0].Retained, got[1].Retained)
	}
}

func TestFakeClientCommandRoundTrip(t *testing.T) {
	f := NewFakeClient()
	var got []string
	f.HandleCommands(func(name string) error {
		got = append(got, name)
		if name == "bogus" {
			return errors.New("unknown")
		}
		return nil
	})

	if err := f.Inject([]byte(`{"command":"WASH"}`)); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if err := f.SendCommand("halt"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.SendCommand("bogus"); err == nil {
		t.Error("expected handler error to propagate")
	}

	want := []string{"wash", "halt", "bogus"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
	if sent := f.Sent(); len(sent) != 2 {
		t.Errorf("sent = %v", sent)
	}
}

func TestFakeClientWatchEvents(t *testing.T) {
	f := NewFakeClient()
	var seen []EventPayload
	f.WatchEvents(func(p EventPayload) { seen = append(seen, p) })

	f.Report(notify.Event{Time: stamp, Kind: notify.AwaitingBalance, Stage: "SPIN"})

	if len(seen) != 1 {
		t.Fatalf("expected 1 watched event, got %d", len(seen))
	}
	if seen[0].Event != "AWAITING_BALANCE" {
		t.Errorf("event = %s", seen[0].Event)
	}
}

func TestFakeClientReset(t *testing.T) {
	f := NewFakeClient()
	f.Report(notify.Event{Kind: notify.PhaseStart})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true
	f.Reset()

	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 || f.Closed || f.IsConnected() {
		t.Error("reset did not clear state")
	}
	if err := f.Report(notify.Event{Kind: notify.PhaseStart}); err != nil {
		t.Fatalf("report after reset: %v", err)
	}
	if len(f.Events()) != 1 {
		t.Error("fake not reusable after reset")
	}
}

func TestFakeClientSatisfiesInterfaces(t *testing.T) {
	var _ Publisher = NewFakeClient()
	var _ Subscriber = NewFakeClient()
	var _ ConnectionStatus = NewFakeClient()
	var _ notify.Reporter = NewFakeClient()
	var _ Publisher = (*RealClient)(nil)
	var _ Subscriber = (*RealClient)(nil)
}

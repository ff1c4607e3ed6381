package status

import (
	"encoding/json"
	"time"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/program"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Mode          string         `json:"mode"`
	Running       bool           `json:"running"`
	Stage         string         `json:"stage,omitempty"`
	Phase         string         `json:"phase"`
	Iteration     int            `json:"iteration"`
	Level         *float64       `json:"level_liters"`
	Actuators     actuator.State `json:"actuators"`
	Display       []string       `json:"display,omitempty"`
	Run           *RunJSON       `json:"run,omitempty"`
	LastRun       *RunJSON       `json:"last_run,omitempty"`
	Runs          int            `json:"runs"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// RunJSON is the JSON representation of a program run.
type RunJSON struct {
	ID             string      `json:"id"`
	Mode           string      `json:"mode"`
	Started        string      `json:"started"`
	RuntimeSeconds int64       `json:"runtime_seconds"`
	WaterUsed      float64     `json:"water_used_liters"`
	Outcome        string      `json:"outcome,omitempty"`
	Error          string      `json:"error,omitempty"`
	Stages         []StageJSON `json:"stages,omitempty"`
}

// StageJSON is one stage of a run.
type StageJSON struct {
	Stage           string  `json:"stage"`
	WaterUsed       float64 `json:"water_used_liters"`
	DurationSeconds int64   `json:"duration_seconds"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs          int64   `json:"poll_ms"`
	ConfirmWindowMs int64   `json:"confirm_window_ms"`
	HeartbeatMs     int64   `json:"heartbeat_ms"`
	FillTarget      float64 `json:"fill_target_liters"`
	DrainComplete   float64 `json:"drain_complete_liters"`
	DrainDuringSpin bool    `json:"drain_during_spin"`
	Simulation      bool    `json:"simulation"`
	Broker          string  `json:"broker"`
	HTTPPort        string  `json:"http_port"`
}

func buildRun(r *program.Report) *RunJSON {
	if r == nil {
		return nil
	}
	out := &RunJSON{
		ID:             r.ID,
		Mode:           r.Mode.String(),
		Started:        r.Started.UTC().Format(time.RFC3339),
		RuntimeSeconds: int64(r.Runtime.Truncate(time.Second).Seconds()),
		WaterUsed:      r.WaterUsed,
		Outcome:        string(r.Outcome),
		Error:          r.Err,
	}
	for _, s := range r.Stages {
		out.Stages = append(out.Stages, StageJSON{
			Stage:           string(s.Stage),
			WaterUsed:       s.WaterUsed,
			DurationSeconds: int64(s.Duration.Truncate(time.Second).Seconds()),
		})
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Mode:          snap.Mode.String(),
		Running:       snap.Running(),
		Stage:         string(snap.Stage),
		Phase:         snap.Phase.String(),
		Iteration:     snap.Iteration,
		Actuators:     snap.Actuators,
		Display:       snap.Display,
		Run:           buildRun(snap.Current),
		LastRun:       buildRun(snap.Last),
		Runs:          snap.Runs,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:          snap.Config.PollMs,
			ConfirmWindowMs: snap.Config.ConfirmWindowMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			FillTarget:      snap.Config.FillTarget,
			DrainComplete:   snap.Config.DrainComplete,
			DrainDuringSpin: snap.Config.DrainDuringSpin,
			Simulation:      snap.Config.Simulation,
			Broker:          snap.Config.Broker,
			HTTPPort:        snap.Config.HTTPPort,
		},
	}
	if snap.LevelValid {
		l := snap.Level
		inner.Level = &l
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

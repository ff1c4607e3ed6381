// Package mqtt carries washer events to the broker and remote commands back
// from it, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/atharvap8/intelliverter/internal/notify"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "home/washer"

// ErrEmptyCommand is returned by ParseCommand for a blank payload.
var ErrEmptyCommand = errors.New("empty command")

// Topics holds the three topics the daemon uses under one prefix.
type Topics struct {
	Events  string
	System  string
	Command string
}

// TopicsFor derives the topic set from a prefix like "home/washer".
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes events to MQTT. It satisfies notify.Reporter so it
// can be added to a notify.Dispatcher.
type Publisher interface {
	// Report sends a washer event to the broker. An error must not stop
	// the controller.
	Report(ev notify.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler runs one remote command by name.
type CommandHandler func(name string) error

// EventHandler receives decoded washer events from the events topic.
type EventHandler func(p EventPayload)

// Subscriber receives messages from the broker.
type Subscriber interface {
	// HandleCommands subscribes to the command topic and calls h for each
	// command. The subscription is restored after a reconnect.
	HandleCommands(h CommandHandler) error

	// WatchEvents subscribes to the events topic.
	WatchEvents(h EventHandler) error

	// SendCommand publishes a command for another instance to execute.
	SendCommand(name string) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure for washer events.
type Payload struct {
	Washer EventPayload `json:"washer"`
}

// EventPayload contains the washer event details.
type EventPayload struct {
	Timestamp      string   `json:"timestamp"`
	Event          string   `json:"event"`
	RunID          string   `json:"run_id,omitempty"`
	Program        string   `json:"program,omitempty"`
	Stage          string   `json:"stage,omitempty"`
	Liters         *float64 `json:"liters,omitempty"`
	RuntimeMinutes *int     `json:"runtime_minutes,omitempty"`
	Error          string   `json:"error,omitempty"`
	Text           string   `json:"text"`
}

func carriesLiters(k notify.Kind) bool {
	switch k {
	case notify.FillComplete, notify.DrainComplete, notify.ProgramComplete:
		return true
	}
	return false
}

// FormatPayload creates the JSON payload for a washer event.
func FormatPayload(ev notify.Event) ([]byte, error) {
	p := EventPayload{
		Timestamp: ev.Time.UTC().Format(time.RFC3339),
		Event:     string(ev.Kind),
		RunID:     ev.RunID,
		Program:   ev.Program,
		Stage:     ev.Stage,
		Error:     ev.Err,
		Text:      ev.Text(),
	}
	if carriesLiters(ev.Kind) {
		l := ev.Liters
		p.Liters = &l
	}
	if ev.Kind == notify.ProgramComplete {
		m := int(ev.Runtime / time.Minute)
		p.RuntimeMinutes = &m
	}
	return json.Marshal(Payload{Washer: p})
}

// ParsePayload decodes a message from the events topic.
func ParsePayload(data []byte) (EventPayload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return EventPayload{}, err
	}
	return p.Washer, nil
}

type commandPayload struct {
	Command string `json:"command"`
}

// ParseCommand accepts either a bare command name ("wash") or a JSON
// object {"command":"wash"} and returns the lowercased name.
func ParseCommand(data []byte) (string, error) {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "{") {
		var c commandPayload
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return "", err
		}
		s = strings.TrimSpace(c.Command)
	}
	if s == "" {
		return "", ErrEmptyCommand
	}
	return strings.ToLower(s), nil
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

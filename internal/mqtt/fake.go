package mqtt

import (
	"sync"

	"github.com/atharvap8/intelliverter/internal/notify"
)

// FakeClient records published events and lets tests inject commands.
type FakeClient struct {
	mu sync.Mutex

	events         []notify.Event
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	sent           []string

	commands CommandHandler
	watchers []EventHandler

	// PublishError, if set, will be returned by Report.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Report records the washer event and forwards it to any WatchEvents handler.
func (f *FakeClient) Report(ev notify.Event) error {
	f.mu.Lock()
	if f.PublishError != nil {
		err := f.PublishError
		f.mu.Unlock()
		return err
	}
	payload, err := FormatPayload(ev)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.events = append(f.events, ev)
	f.payloads = append(f.payloads, payload)
	watchers := append([]EventHandler(nil), f.watchers...)
	f.mu.Unlock()

	if len(watchers) > 0 {
		p, err := ParsePayload(payload)
		if err != nil {
			return err
		}
		for _, h := range watchers {
			h(p)
		}
	}
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// HandleCommands stores the handler for Inject.
func (f *FakeClient) HandleCommands(h CommandHandler) error {
	f.mu.Lock()
	f.commands = h
	f.mu.Unlock()
	return nil
}

// WatchEvents registers h to receive every reported event.
func (f *FakeClient) WatchEvents(h EventHandler) error {
	f.mu.Lock()
	f.watchers = append(f.watchers, h)
	f.mu.Unlock()
	return nil
}

// SendCommand records the command and delivers it like the broker would.
func (f *FakeClient) SendCommand(name string) error {
	f.mu.Lock()
	f.sent = append(f.sent, name)
	f.mu.Unlock()
	return f.Inject([]byte(name))
}

// Inject simulates a message arriving on the command topic.
func (f *FakeClient) Inject(payload []byte) error {
	name, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	h := f.commands
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(name)
}

// Events returns the reported washer events.
func (f *FakeClient) Events() []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Event(nil), f.events...)
}

// Payloads returns the JSON payloads for washer events.
func (f *FakeClient) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns the published system events.
func (f *FakeClient) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the JSON payloads for system events.
func (f *FakeClient) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Sent returns the commands passed to SendCommand.
func (f *FakeClient) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
	f.payloads = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.sent = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/notify"
)

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string
	Prefix     string
	Username   string
	Password   string
	BufferSize int
	// Now stamps the RECONNECTED and will messages. Defaults to time.Now.
	Now func() time.Time
}

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	defaultBuffer  = 256
)

// RealClient publishes to and subscribes on an actual MQTT broker. While the
// connection is down published messages are kept in a ring buffer and
// replayed, oldest first, once paho reconnects.
type RealClient struct {
	client paho.Client
	topics Topics
	log    *zap.SugaredLogger
	now    func() time.Time

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	connects  int
	commands  CommandHandler
	events    EventHandler
}

// NewRealClient creates a client for the given broker. An unreachable
// broker is not an error: paho keeps retrying in the background and
// messages are buffered until it succeeds.
func NewRealClient(o Options, log *zap.SugaredLogger) (*RealClient, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured")
	}
	if o.ClientID == "" {
		o.ClientID = "intelliverter"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBuffer
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	c := &RealClient{
		topics: TopicsFor(o.Prefix),
		log:    log,
		now:    o.Now,
		buf:    newRingBuffer(o.BufferSize, log),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: o.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(c.topics.System, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onLost)

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnw("mqtt broker not reachable yet, buffering", "broker", o.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Topics returns the topic set in use.
func (c *RealClient) Topics() Topics { return c.topics }

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Buffered returns the number of messages waiting for a reconnect.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Report publishes a washer event.
func (c *RealClient) Report(ev notify.Event) error {
	payload, err := FormatPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1 so phase completions survive a flaky link
	return c.publish(bufferedMsg{topic: c.topics.Events, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(bufferedMsg{topic: c.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// SendCommand publishes a command on the command topic.
func (c *RealClient) SendCommand(name string) error {
	return c.send(bufferedMsg{topic: c.topics.Command, payload: []byte(name), qos: 1})
}

func (c *RealClient) publish(m bufferedMsg) error {
	c.mu.Lock()
	if !c.connected {
		c.buf.push(m)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.send(m); err != nil {
		c.mu.Lock()
		c.buf.push(m)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *RealClient) send(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// HandleCommands subscribes to the command topic.
func (c *RealClient) HandleCommands(h CommandHandler) error {
	c.mu.Lock()
	c.commands = h
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.subscribeCommands(h)
}

// WatchEvents subscribes to the events topic.
func (c *RealClient) WatchEvents(h EventHandler) error {
	c.mu.Lock()
	c.events = h
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.subscribeEvents(h)
}

func (c *RealClient) subscribeCommands(h CommandHandler) error {
	token := c.client.Subscribe(c.topics.Command, 1, func(_ paho.Client, msg paho.Message) {
		name, err := ParseCommand(msg.Payload())
		if err != nil {
			c.log.Warnw("bad remote command", "payload", string(msg.Payload()), "err", err)
			return
		}
		if err := h(name); err != nil {
			c.log.Warnw("remote command rejected", "command", name, "err", err)
			return
		}
		c.log.Infow("remote command", "command", name)
	})
	return waitToken(token, "subscribe "+c.topics.Command)
}

func (c *RealClient) subscribeEvents(h EventHandler) error {
	token := c.client.Subscribe(c.topics.Events, 0, func(_ paho.Client, msg paho.Message) {
		p, err := ParsePayload(msg.Payload())
		if err != nil {
			c.log.Warnw("bad event payload", "err", err)
			return
		}
		h(p)
	})
	return waitToken(token, "subscribe "+c.topics.Events)
}

func waitToken(t paho.Token, what string) error {
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s: timeout", what)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (c *RealClient) onConnect(_ paho.Client) {
	c.mu.Lock()
	c.connected = true
	c.connects++
	reconnect := c.connects > 1
	pending := c.buf.drainAll()
	commands, events := c.commands, c.events
	c.mu.Unlock()

	c.log.Infow("mqtt connected", "replay", len(pending))

	if commands != nil {
		if err := c.subscribeCommands(commands); err != nil {
			c.log.Warnw("resubscribe failed", "err", err)
		}
	}
	if events != nil {
		if err := c.subscribeEvents(events); err != nil {
			c.log.Warnw("resubscribe failed", "err", err)
		}
	}

	for i, m := range pending {
		if err := c.send(m); err != nil {
			c.log.Warnw("replay failed, re-buffering", "remaining", len(pending)-i, "err", err)
			c.mu.Lock()
			for _, rest := range pending[i:] {
				c.buf.push(rest)
			}
			c.mu.Unlock()
			return
		}
	}

	if reconnect {
		if err := c.PublishSystem(SystemEvent{Timestamp: c.now(), Event: "RECONNECTED"}); err != nil {
			c.log.Warnw("publish RECONNECTED", "err", err)
		}
	}
}

func (c *RealClient) onLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.log.Warnw("mqtt connection lost", "err", err)
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

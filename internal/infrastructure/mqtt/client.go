package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the observatory host bus.
//
// It keeps a table of subscriptions so they are re-established after paho
// reconnects, and it maintains a retained presence message on
// {prefix}/system/status (online on connect, offline on Close, and the
// broker-published will when the bridge dies).
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu            sync.RWMutex
	connected     bool
	subscriptions map[string]subscription
	onConnect     func()
	onDisconnect  func(err error)
	logger        Logger
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. Paho calls handlers from its own
// goroutines; a returned error is logged and the message is still acked.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg and waits for the first CONNACK.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        NewTopics(cfg.TopicPrefix),
		subscriptions: make(map[string]subscription),
	}

	opts := clientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, o *pahomqtt.ClientOptions) {
		if l := c.log(); l != nil {
			l.Warn("MQTT reconnecting", "client_id", o.ClientID)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; mark the client usable now.
	c.setConnected(true)
	return c, nil
}

// await waits for a paho token, turning expiry into ErrTimeout.
func await(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return token.Error()
}

func (c *Client) onConnected() {
	c.setConnected(true)

	c.mu.RLock()
	subs := make(map[string]subscription, len(c.subscriptions))
	for filter, sub := range c.subscriptions {
		subs[filter] = sub
	}
	callback := c.onConnect
	c.mu.RUnlock()

	for filter, sub := range subs {
		// Completion is not awaited; paho runs this handler on its router goroutine.
		c.client.Subscribe(filter, sub.qos, c.wrapHandler(sub.handler))
	}
	c.announce(statusOnline, "")

	if callback != nil {
		callback()
	}
}

func (c *Client) onConnectionLost(err error) {
	c.setConnected(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// announce publishes the retained presence message and returns its token.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	payload := presencePayload(c.cfg.Broker.ClientID, status, reason)
	return c.client.Publish(c.topics.SystemStatus(), c.QoS(), true, payload)
}

// Close marks the bridge offline and disconnects. Closing an unconnected
// Client is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		//nolint:errcheck // Best-effort presence update
		await(c.announce(statusOffline, "graceful_shutdown"), opTimeout)
	}
	c.client.Disconnect(disconnectQuiesceMillis)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while paho is reconnecting.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetOnConnect installs a callback run after every connect and reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect installs a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets where handler errors and panics are reported.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts h to paho, recovering panics and logging errors.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := h(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("mqtt handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

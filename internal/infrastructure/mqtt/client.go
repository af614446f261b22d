package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
)

// Client is the bridge's connection to the MQTT broker.
//
// It owns the connection lifecycle, the online/offline status message on
// the bridge's status topic, and the subscription table that is replayed
// after every reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client      pahomqtt.Client
	cfg         config.MQTTConfig
	statusTopic string

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	connected atomic.Bool

	hooksMu sync.RWMutex
	hooks   hooks
}

// hooks are the caller-supplied callbacks and logger.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger used by the client.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's goroutines and should return quickly. A returned
// error is logged; it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first connection.
//
// A retained "unexpected_disconnect" will is registered on statusTopic. On
// every (re)connect the client publishes "online" there, replays its
// subscriptions and then runs the SetOnConnect callback.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - statusTopic: Retained topic carrying the bridge's online/offline state
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker cannot be reached in time
func Connect(cfg config.MQTTConfig, statusTopic string) (*Client, error) {
	c := newClient(cfg, statusTopic)

	opts := buildClientOptions(cfg)
	configureLWT(opts, statusTopic, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), ErrConnectionFailed, defaultConnectTimeout); err != nil {
		return nil, err
	}

	// paho runs the connect handler on its own goroutine; callers may
	// publish before it has fired.
	c.setConnected(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, statusTopic string) *Client {
	return &Client{
		cfg:           cfg,
		statusTopic:   statusTopic,
		subscriptions: make(map[string]subscription),
	}
}

func (c *Client) currentHooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

func (c *Client) updateHooks(fn func(h *hooks)) {
	c.hooksMu.Lock()
	fn(&c.hooks)
	c.hooksMu.Unlock()
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.resubscribe()
	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))

	if fn := c.currentHooks().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	h := c.currentHooks()
	if h.logger != nil {
		h.logger.Warn("MQTT connection lost", "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

func (c *Client) setConnected(v bool) {
	c.connected.Store(v)
}

// resubscribe replays the subscription table after a reconnect. Failures
// are logged; paho retries on the next reconnect.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		err := await(c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler)), ErrSubscribeFailed, defaultPublishTimeout)
		if err != nil {
			if logger := c.currentHooks().logger; logger != nil {
				logger.Warn("MQTT resubscribe failed", "topic", sub.topic, "error", err)
			}
		}
	}
}

func (c *Client) publishStatus(payload string) {
	if c.statusTopic == "" {
		return
	}
	c.client.Publish(c.statusTopic, byte(c.cfg.QoS), true, payload).WaitTimeout(defaultPublishTimeout)
}

// Close publishes a graceful offline status, distinct from the will, and
// disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID))
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected when the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run after the initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.updateHooks(func(h *hooks) { h.onConnect = callback })
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.updateHooks(func(h *hooks) { h.onDisconnect = callback })
}

// SetLogger sets a logger for lost connections, handler errors and
// recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.updateHooks(func(h *hooks) { h.logger = logger })
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs one handler. A panicking or failing handler is logged and
// never reaches paho.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	logger := c.currentHooks().logger

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil && logger != nil {
		logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
	}
}

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/coordinator"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-ezviz/internal/integration"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
)

const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3

	// commandTimeout bounds one command, every lock attempt included.
	commandTimeout = 45 * time.Second

	// requestTimeout bounds one request.
	requestTimeout = 15 * time.Second
)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Device is the bridged device. *integration.Integration satisfies it.
type Device interface {
	Serial() string
	Identity() integration.Identity
	Observations() []observation.Observation
	Execute(ctx context.Context, action command.Action) (command.Result, error)
	Refresh(ctx context.Context) error
	Ready() bool
	Healthy() bool
	Stats() coordinator.Stats
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	// BridgeID identifies the bridge in health messages.
	BridgeID string

	// DeviceID is the Gray Logic device identifier used in messages.
	// Default: "ezviz-{serial}".
	DeviceID string

	Version string

	Device Device
	MQTT   MQTTClient

	// QoS for state, acks and events. Health is always QoS 1.
	QoS byte

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// Audit, if set, records every unlock received over MQTT.
	Audit audit.Repository

	Logger Logger
}

type stateEntry struct {
	value     any
	available bool
}

// Bridge translates between one device and the MQTT bus.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   Options
	serial string
	topics mqtt.Topics
	health *HealthReporter

	// Last published state per observation key, for change detection.
	stateCache map[string]stateEntry
	stateMu    sync.Mutex

	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Device == nil {
		return nil, errors.New("bridge: device is required")
	}
	if opts.MQTT == nil {
		return nil, errors.New("bridge: MQTT client is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	serial := opts.Device.Serial()
	if opts.DeviceID == "" {
		opts.DeviceID = "ezviz-" + serial
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		opts:       opts,
		serial:     serial,
		topics:     mqtt.Topics{Protocol: mqtt.Protocol},
		stateCache: make(map[string]stateEntry),
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     opts.Logger,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Topic:     b.topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Device:    opts.Device,
		Logger:    opts.Logger,
	})
	return b, nil
}

// Start subscribes to command and request topics, publishes the current
// state and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	commandTopic := b.topics.Command(b.serial)
	if err := b.opts.MQTT.Subscribe(commandTopic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	requestTopic := b.topics.Request()
	if err := b.opts.MQTT.Subscribe(requestTopic, 1, b.handleRequest); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logger.Info("subscribed to requests", "topic", requestTopic)

	b.PublishAllState()

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logger.Error("failed to publish health", "error", err)
	}

	b.logger.Info("bridge started", "bridge_id", b.opts.BridgeID, "serial", b.serial)
	return nil
}

// Stop aborts in-flight commands, publishes a final "stopping" health
// status and waits for pending work.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// ObservationChanged implements observation.Listener.
func (b *Bridge) ObservationChanged(serial string, obs observation.Observation) {
	if serial != b.serial {
		return
	}
	b.publishState(obs, false)

	if _, ok := observation.AlarmCategoryByKey(obs.Key); ok && obs.Value == true {
		b.publishEvent(obs)
	}
}

// PublishAllState republishes every observation, ignoring the change
// cache. Call it after reconnecting to the broker.
func (b *Bridge) PublishAllState() {
	for _, obs := range b.opts.Device.Observations() {
		b.publishState(obs, true)
	}
}

func (b *Bridge) publishState(obs observation.Observation, force bool) {
	entry := stateEntry{value: obs.Value, available: obs.Available}

	b.stateMu.Lock()
	prev, seen := b.stateCache[obs.Key]
	if !force && seen && prev.available == entry.available && reflect.DeepEqual(prev.value, entry.value) {
		b.stateMu.Unlock()
		return
	}
	b.stateCache[obs.Key] = entry
	b.stateMu.Unlock()

	payload, err := json.Marshal(newStateMessage(b.opts.DeviceID, b.serial, obs))
	if err != nil {
		b.logger.Error("failed to marshal state", "key", obs.Key, "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(b.topics.State(b.serial, obs.Key), payload, b.opts.QoS, true); err != nil {
		b.logger.Warn("failed to publish state", "key", obs.Key, "error", err)

		// Forget the value so the next change or reconnect publishes it.
		b.stateMu.Lock()
		delete(b.stateCache, obs.Key)
		b.stateMu.Unlock()
	}
}

func (b *Bridge) publishEvent(obs observation.Observation) {
	b.publishJSON(b.topics.Event(b.serial), newEventMessage(b.opts.DeviceID, b.serial, obs), false)
}

func (b *Bridge) publishJSON(topic string, msg any, retained bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(topic, payload, b.opts.QoS, retained); err != nil {
		b.logger.Warn("failed to publish", "topic", topic, "error", err)
	}
}

// handleCommand parses a command and runs it in the background so the
// MQTT client's goroutine is not held for the unlock round trips.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	if parts := strings.Split(topic, "/"); len(parts) < minTopicParts {
		return fmt.Errorf("%w: topic %q", ErrInvalidMessage, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"source", cmd.Source,
	)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publishJSON(b.topics.Ack(b.serial), b.executeCommand(cmd), false)
	}()
	return nil
}

// executeCommand runs cmd and returns its acknowledgement.
func (b *Bridge) executeCommand(cmd CommandMessage) AckMessage {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if strings.EqualFold(strings.TrimSpace(cmd.Command), CommandRefresh) {
		if err := b.opts.Device.Refresh(ctx); err != nil {
			return newAckError(cmd, b.serial, errorCode(err), err.Error(), 0)
		}
		return newAck(cmd, b.serial, AckAccepted)
	}

	action, err := command.ParseAction(cmd.Command)
	if err != nil {
		return newAckError(cmd, b.serial, ErrCodeInvalidCommand, err.Error(), 0)
	}

	res, err := b.opts.Device.Execute(ctx, action)
	if err != nil {
		return newAckError(cmd, b.serial, errorCode(err), err.Error(), 0)
	}
	b.recordUnlock(ctx, cmd, res)
	return newResultAck(cmd, b.serial, res)
}

// recordUnlock writes an MQTT unlock to the audit trail. The actor is the
// command's user, or its source when no user is named.
func (b *Bridge) recordUnlock(ctx context.Context, cmd CommandMessage, res command.Result) {
	if b.opts.Audit == nil {
		return
	}
	actor := cmd.UserID
	if actor == "" {
		actor = cmd.Source
	}
	entry := audit.NewEntry(b.serial, audit.SourceMQTT, actor, res)
	if cmd.ID != "" {
		entry.Details["command_id"] = cmd.ID
	}
	if err := b.opts.Audit.Create(ctx, entry); err != nil {
		b.logger.Warn("recording unlock failed", "command_id", cmd.ID, "error", err)
	}
}

// handleRequest answers a request on its response topic. Like commands,
// requests are served in the background; a refresh waits on the cloud.
func (b *Bridge) handleRequest(topic string, payload []byte) error {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if req.RequestID == "" {
		if i := strings.LastIndex(topic, "/"); i >= 0 {
			req.RequestID = topic[i+1:]
		}
	}
	if req.RequestID == "" {
		return fmt.Errorf("%w: request without id", ErrInvalidMessage)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publishJSON(b.topics.Response(req.RequestID), b.answerRequest(req), false)
	}()
	return nil
}

// answerRequest serves req and wraps the outcome in a response.
func (b *Bridge) answerRequest(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, requestTimeout)
	defer cancel()

	data, err := b.serveRequest(ctx, req)
	resp := ResponseMessage{RequestID: req.RequestID, Timestamp: time.Now().UTC()}
	if err != nil {
		resp.Error = &ResponseError{Code: errorCode(err), Message: err.Error()}
		return resp
	}
	resp.Success = true
	resp.Data = data
	return resp
}

func (b *Bridge) serveRequest(ctx context.Context, req RequestMessage) (map[string]any, error) {
	switch req.Action {
	case RequestReadState:
		return b.stateData(), nil
	case RequestRefresh:
		if err := b.opts.Device.Refresh(ctx); err != nil {
			return nil, err
		}
		return b.stateData(), nil
	case RequestDeviceInfo:
		info := b.opts.Device.Identity().Info()
		return map[string]any{
			"device_id":    b.opts.DeviceID,
			"serial":       info.Serial,
			"name":         info.Name,
			"title":        info.Title,
			"manufacturer": info.Manufacturer,
			"model":        info.Model,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Action)
	}
}

// stateData returns every observation keyed by its key.
func (b *Bridge) stateData() map[string]any {
	observations := b.opts.Device.Observations()
	state := make(map[string]any, len(observations))
	for _, obs := range observations {
		state[obs.Key] = obs
	}
	return map[string]any{
		"device_id": b.opts.DeviceID,
		"serial":    b.serial,
		"state":     state,
	}
}

// errorCode maps an error to a bridge error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, integration.ErrNotSetUp):
		return ErrCodeNotReady
	case errors.Is(err, observation.ErrUnsupported), errors.Is(err, ErrUnknownRequest):
		return ErrCodeNotSupported
	case errors.Is(err, command.ErrUnknownAction):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeDeviceUnreachable
	}
}

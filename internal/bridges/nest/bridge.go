package nest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-nest/internal/command"
	"github.com/nerrad567/gray-logic-nest/internal/device"
	"github.com/nerrad567/gray-logic-nest/internal/engine"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds one inbound command, remote write included.
	commandTimeout = 30 * time.Second

	// queueSize is the number of outbound messages held while the broker
	// is slow.
	queueSize = 256

	// commandQoS is used for the command subscription and empty retained
	// clears.
	commandQoS = 1
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishMessage(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Codec() mqtt.Codec
}

// Engine is the subset of *engine.Engine the bridge uses.
type Engine interface {
	Subscribe(fn func(engine.Event)) func()
	Structures() []device.Structure
	Devices(kind device.Kind) []*device.Device
	Device(kind device.Kind, id string) (*device.Device, error)
	Handle(kind device.Kind, id string) (*device.Handle, error)
	SendCommand(ctx context.Context, kind device.Kind, id, attr string, value any) error
	SetTargetTemperature(ctx context.Context, id string, celsius float64) error
	SetHvacMode(ctx context.Context, id, mode string) error
	SetStreaming(ctx context.Context, id string, on bool) error
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// outbound is one queued publish. State and resync entries are resolved
// by the worker, never on the engine goroutine that queued them.
type outbound struct {
	topic    string
	msg      any
	retained bool
	clear    bool

	stateKind device.Kind
	stateID   string
	resync    bool
}

// Bridge mirrors engine events to MQTT and executes MQTT commands.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	engine Engine
	topics mqtt.Topics

	queue       chan outbound
	unsubscribe func()

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(client MQTTClient, eng Engine) (*Bridge, error) {
	if client == nil || eng == nil {
		return nil, ErrMissingDependency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:      client,
		engine:    eng,
		queue:     make(chan outbound, queueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start subscribes to device commands, starts the publish worker and
// publishes the current state of every structure and device.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		topic := b.topics.AllCommands()
		if err = b.mqtt.Subscribe(topic, commandQoS, b.handleCommand); err != nil {
			err = fmt.Errorf("subscribe to commands: %w", err)
			return
		}
		b.log().Info("subscribed to commands", "topic", topic)

		b.wg.Add(1)
		go b.worker()

		b.unsubscribe = b.engine.Subscribe(b.onEvent)
		b.enqueue(outbound{resync: true})
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Stop detaches from the engine, cancels in-flight commands and waits for
// the worker to drain the queue.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.ctxCancel()
		close(b.done)
		b.wg.Wait()
		b.log().Info("nest bridge stopped")
	})
}

// =============================================================================
// Outbound
// =============================================================================

func (b *Bridge) enqueue(o outbound) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.queue <- o:
	default:
		b.log().Warn("mqtt publish queue full, dropping message", "topic", o.topic)
	}
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for {
		select {
		case o := <-b.queue:
			b.send(o)
		case <-b.done:
			for {
				select {
				case o := <-b.queue:
					b.send(o)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) send(o outbound) {
	switch {
	case o.resync:
		b.publishAll()
		return
	case o.stateID != "":
		b.publishState(o.stateKind, o.stateID)
		return
	}

	var err error
	if o.clear {
		err = b.mqtt.Publish(o.topic, nil, commandQoS, true)
	} else {
		err = b.mqtt.PublishMessage(o.topic, o.msg, o.retained)
	}
	if err != nil {
		b.log().Warn("mqtt publish failed", "topic", o.topic, "error", err)
	}
}

// onEvent runs on engine goroutines and only enqueues.
func (b *Bridge) onEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventAuthenticated, engine.EventUnauthenticated, engine.EventURL,
		engine.EventError, engine.EventInitialized:
		b.enqueue(outbound{topic: b.topics.Auth(), msg: AuthMessage{
			Type:      string(ev.Type),
			Value:     ev.Value,
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		}})
		if ev.Type == engine.EventInitialized && ev.Value == true {
			b.enqueue(outbound{resync: true})
		}

	case engine.EventDeviceData, engine.EventDeviceAvailability:
		b.enqueueDeviceEvent(ev)
		b.enqueue(outbound{stateKind: ev.Kind, stateID: ev.DeviceID})

	case engine.EventDeviceAlarm, engine.EventDeviceMotion:
		b.enqueueDeviceEvent(ev)

	case engine.EventDeviceRemoved:
		b.enqueueDeviceEvent(ev)
		b.enqueue(outbound{topic: b.topics.DeviceState(string(ev.Kind), ev.DeviceID), clear: true})

	case engine.EventStructureChanged:
		if ev.Structure != nil {
			b.enqueueStructure(*ev.Structure)
		}
	}
}

func (b *Bridge) enqueueDeviceEvent(ev engine.Event) {
	b.enqueue(outbound{
		topic: b.topics.DeviceEvent(string(ev.Kind), ev.DeviceID),
		msg: EventMessage{
			Type:      string(ev.Type),
			DeviceID:  ev.DeviceID,
			Kind:      ev.Kind,
			Attr:      ev.Attr,
			Value:     ev.Value,
			Previous:  ev.Previous,
			Reason:    ev.Reason,
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		},
	})
}

// publishState publishes the retained state of a device as it is now.
// Engine queries take engine and registry locks, so this only runs on
// the worker.
func (b *Bridge) publishState(kind device.Kind, id string) {
	d, err := b.engine.Device(kind, id)
	if err != nil {
		return
	}
	msg := StateMessage{
		DeviceID:      d.ID,
		Kind:          d.Kind,
		Name:          d.DisplayName,
		StructureID:   d.StructureID,
		StructureName: d.StructureName,
		State:         d.Attributes,
		CommandTopic:  b.topics.Command(string(kind), id),
		Timestamp:     time.Now().UTC(),
	}
	if h, err := b.engine.Handle(kind, id); err == nil {
		msg.Available, msg.Reason = h.Available()
	}
	b.send(outbound{topic: b.topics.DeviceState(string(kind), id), msg: msg, retained: true})
}

func (b *Bridge) enqueueStructure(s device.Structure) {
	b.enqueue(structureOutbound(b.topics, s))
}

func structureOutbound(topics mqtt.Topics, s device.Structure) outbound {
	return outbound{
		topic: topics.Structure(s.ID),
		msg: StructureMessage{
			StructureID: s.ID,
			Name:        s.Name,
			Away:        s.Away,
			Timestamp:   time.Now().UTC(),
		},
		retained: true,
	}
}

// publishAll republishes every structure and device. Worker only.
func (b *Bridge) publishAll() {
	for _, s := range b.engine.Structures() {
		b.send(structureOutbound(b.topics, s))
	}
	for _, kind := range device.Kinds {
		for _, d := range b.engine.Devices(kind) {
			b.publishState(kind, d.ID)
		}
	}
}

// =============================================================================
// Inbound
// =============================================================================

// handleCommand decodes a command, executes it and publishes the ack.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	kindStr, id, ok := mqtt.ParseCommandTopic(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidCommand, topic)
	}
	kind, err := device.ParseKind(kindStr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	var cmd CommandMessage
	if err := b.mqtt.Codec().Unmarshal(payload, &cmd); err != nil {
		b.publishAck(kind, id, CommandMessage{ID: uuid.NewString()}, &AckError{
			Code:    ErrCodeInvalidCommand,
			Message: "payload could not be decoded",
		})
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.log().Info("received command",
		"command_id", cmd.ID,
		"kind", string(kind),
		"device_id", id,
		"attr", cmd.Attr,
		"source", cmd.Source)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	err = b.execute(ctx, kind, id, cmd)
	if err != nil {
		b.publishAck(kind, id, cmd, &AckError{Code: errorCode(err), Message: err.Error()})
		return err
	}
	b.publishAck(kind, id, cmd, nil)
	return nil
}

// execute routes typed attributes through their dedicated operations so
// rounding, eco override and camera checks apply.
func (b *Bridge) execute(ctx context.Context, kind device.Kind, id string, cmd CommandMessage) error {
	if cmd.Attr == "" {
		return fmt.Errorf("%w: attr is required", ErrInvalidCommand)
	}
	value := normalizeNumber(cmd.Value)

	switch {
	case kind == device.KindThermostat && cmd.Attr == device.AttrTargetTemperatureC:
		celsius, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidCommand, cmd.Attr)
		}
		return b.engine.SetTargetTemperature(ctx, id, celsius)

	case kind == device.KindThermostat && cmd.Attr == device.AttrHvacMode:
		mode, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidCommand, cmd.Attr)
		}
		return b.engine.SetHvacMode(ctx, id, mode)

	case kind == device.KindCamera && cmd.Attr == device.AttrIsStreaming:
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidCommand, cmd.Attr)
		}
		return b.engine.SetStreaming(ctx, id, on)
	}
	return b.engine.SendCommand(ctx, kind, id, cmd.Attr, value)
}

func (b *Bridge) publishAck(kind device.Kind, id string, cmd CommandMessage, ackErr *AckError) {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		DeviceID:  id,
		Attr:      cmd.Attr,
		Status:    AckAccepted,
		Error:     ackErr,
	}
	if ackErr != nil {
		ack.Status = AckFailed
	}
	// Acks are published from the paho handler goroutine, not an engine
	// callback, so they can go out directly.
	if err := b.mqtt.PublishMessage(b.topics.CommandAck(string(kind), id), ack, false); err != nil {
		b.log().Warn("failed to publish ack", "command_id", cmd.ID, "error", err)
	}
}

// errorCode maps a command failure to its ack code.
func errorCode(err error) string {
	var cerr *command.Error
	switch {
	case errors.As(err, &cerr):
		return strings.ToUpper(string(cerr.Kind))
	case errors.Is(err, device.ErrDeviceNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrInvalidCommand),
		errors.Is(err, device.ErrUnsupportedCommand),
		errors.Is(err, device.ErrUnknownKind):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeBridgeError
	}
}

// normalizeNumber turns the integer types a CBOR decoder produces into
// float64, the shape JSON decoding gives.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

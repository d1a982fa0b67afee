package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/logging"
)

// StatePayload is published on the state topic.
type StatePayload struct {
	ID        int       `json:"id"`
	Device    string    `json:"device"`
	On        bool      `json:"on"`
	State     string    `json:"state"`
	Level     uint8     `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// SubmitFunc hands a command to the poll loop.
type SubmitFunc func(device.Command) error

// Bridge connects one device to MQTT. It implements device.Reporter.
type Bridge struct {
	broker Broker
	id     int
	name   string
	topics Topics
	submit SubmitFunc

	pending chan StatePayload
	sub     Subscription

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewBridge creates a bridge for device id.
func NewBridge(broker Broker, prefix string, id int, name string, submit SubmitFunc) *Bridge {
	return &Bridge{
		broker:  broker,
		id:      id,
		name:    name,
		topics:  TopicsFor(prefix, name),
		submit:  submit,
		pending: make(chan StatePayload, 1),
		stop:    make(chan struct{}),
	}
}

// Topics returns the topics this bridge uses.
func (b *Bridge) Topics() Topics { return b.topics }

// Start subscribes to the set topic and starts the publisher goroutine.
// The broker must already be connected.
func (b *Bridge) Start(ctx context.Context) error {
	sub, err := b.broker.Subscribe(ctx, b.topics.Set, AtLeastOnce, b.onSet)
	if err != nil {
		return err
	}
	b.sub = sub

	b.wg.Add(1)
	go b.publishLoop()

	logging.Info("MQTT bridge started",
		zap.String("state_topic", b.topics.State),
		zap.String("set_topic", b.topics.Set),
	)
	return nil
}

// ReportState queues a state publication. Only the newest state is kept,
// so a stalled broker can never block the caller.
func (b *Bridge) ReportState(id int, on bool, level uint8) {
	if id != b.id {
		return
	}
	p := StatePayload{
		ID:        id,
		Device:    b.name,
		On:        on,
		State:     stateString(on),
		Level:     level,
		Timestamp: time.Now().UTC(),
	}
	for {
		select {
		case b.pending <- p:
			return
		default:
		}
		select {
		case <-b.pending:
		default:
		}
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case p := <-b.pending:
			data, err := json.Marshal(p)
			if err != nil {
				logging.Error("Failed to marshal state", zap.Error(err))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = b.broker.Publish(ctx, b.topics.State, AtLeastOnce, true, data)
			cancel()
			if err != nil {
				logging.Warn("Failed to publish state",
					zap.String("topic", b.topics.State),
					zap.Error(err),
				)
				continue
			}
			logging.Debug("Published state", zap.String("topic", b.topics.State), zap.String("state", p.State))
		}
	}
}

func (b *Bridge) onSet(_ context.Context, topic string, payload []byte) {
	cmd, err := ParseCommand(b.id, payload)
	if err != nil {
		logging.Warn("Ignoring MQTT command",
			zap.String("topic", topic),
			zap.String("payload", string(payload)),
			zap.Error(err),
		)
		return
	}
	logging.LogRemoteCommand("mqtt", b.id, b.name, cmd.On, cmd.Level)
	if err := b.submit(cmd); err != nil {
		logging.Warn("MQTT command dropped", zap.Error(err))
	}
}

// Stop unsubscribes and stops publishing.
func (b *Bridge) Stop(ctx context.Context) error {
	var err error
	b.once.Do(func() {
		close(b.stop)
		b.wg.Wait()
		if b.sub != nil {
			err = b.sub.Unsubscribe(ctx)
		}
	})
	return err
}

var errEmptyCommand = errors.New("empty command")

// ParseCommand decodes a set-topic payload: ON, OFF, TOGGLE (any case), 1,
// 0, or JSON {"on": bool} / {"state": "ON"}.
func ParseCommand(id int, payload []byte) (device.Command, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return device.Command{}, errEmptyCommand
	}

	if strings.HasPrefix(text, "{") {
		var body struct {
			On    *bool   `json:"on"`
			State *string `json:"state"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return device.Command{}, fmt.Errorf("invalid JSON command: %w", err)
		}
		switch {
		case body.On != nil:
			return device.Set(id, *body.On, "mqtt"), nil
		case body.State != nil:
			text = *body.State
		default:
			return device.Command{}, errors.New(`JSON command needs "on" or "state"`)
		}
	}

	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "ON", "1", "TRUE":
		return device.Set(id, true, "mqtt"), nil
	case "OFF", "0", "FALSE":
		return device.Set(id, false, "mqtt"), nil
	case "TOGGLE":
		return device.Toggle(id, "mqtt"), nil
	default:
		return device.Command{}, fmt.Errorf("unknown command %q", text)
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

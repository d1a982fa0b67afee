package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/logging"
)

// BrokerConfig configures MsgBroker.
type BrokerConfig struct {
	BrokerURL        string
	ClientID         string
	Username         string
	Password         string
	ConnectTimeout   time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration

	// WillTopic, when set, receives WillPayload (retained) if the
	// connection drops, and OnlinePayload on every (re)connect.
	WillTopic     string
	WillPayload   string
	OnlinePayload string
}

// MsgBroker is a paho-backed Broker. Subscriptions are restored after an
// automatic reconnect.
type MsgBroker struct {
	config BrokerConfig
	client mqtt.Client

	mu   sync.RWMutex
	subs map[string]mqtt.MessageHandler
	qos  map[string]byte
}

// NewMsgBroker creates an unconnected broker client.
func NewMsgBroker(cfg BrokerConfig) *MsgBroker {
	return &MsgBroker{
		config: cfg,
		subs:   make(map[string]mqtt.MessageHandler),
		qos:    make(map[string]byte),
	}
}

// Connect dials the broker. Later reconnects happen in the background.
func (b *MsgBroker) Connect(ctx context.Context) error {
	if b.client == nil {
		b.client = mqtt.NewClient(b.options())
	}
	if b.client.IsConnected() {
		return nil
	}

	t := b.client.Connect()
	select {
	case <-t.Done():
		if err := t.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", b.config.BrokerURL, err)
		}
		return nil
	case <-ctx.Done():
		b.client.Disconnect(250)
		return ctx.Err()
	}
}

func (b *MsgBroker) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(b.config.BrokerURL)
	opts.SetClientID(b.config.ClientID)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
		opts.SetPassword(b.config.Password)
	}
	if b.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(b.config.ConnectTimeout)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if b.config.WillTopic != "" {
		opts.SetWill(b.config.WillTopic, b.config.WillPayload, byte(AtLeastOnce), true)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logging.Info("MQTT connected", zap.String("broker", b.config.BrokerURL))
		b.onConnect(c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", b.config.BrokerURL), zap.Error(err))
	})
	return opts
}

// onConnect restores subscriptions and announces availability. It runs on a
// paho goroutine and must not wait on tokens for long.
func (b *MsgBroker) onConnect(c mqtt.Client) {
	b.mu.RLock()
	subs := make(map[string]mqtt.MessageHandler, len(b.subs))
	for topic, h := range b.subs {
		subs[topic] = h
	}
	qos := make(map[string]byte, len(b.qos))
	for topic, q := range b.qos {
		qos[topic] = q
	}
	b.mu.RUnlock()

	for topic, h := range subs {
		c.Subscribe(topic, qos[topic], h)
	}
	if b.config.WillTopic != "" && b.config.OnlinePayload != "" {
		c.Publish(b.config.WillTopic, byte(AtLeastOnce), true, b.config.OnlinePayload)
	}
}

func (b *MsgBroker) IsConnected() bool {
	if b.client == nil {
		return false
	}
	return b.client.IsConnected()
}

// Close publishes the will payload (a clean disconnect does not trigger
// the broker's will) and disconnects.
func (b *MsgBroker) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	if b.config.WillTopic != "" && b.client.IsConnected() {
		_ = b.Publish(ctx, b.config.WillTopic, AtLeastOnce, true, []byte(b.config.WillPayload))
	}

	done := make(chan struct{})
	go func() {
		b.client.Disconnect(250)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MsgBroker) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if b.client == nil {
		return errors.New("mqtt client not initialized")
	}
	qosByte, wait := qosToByte(qos)
	token := b.client.Publish(topic, qosByte, retain, payload)
	if !wait {
		return nil
	}
	timeout := b.config.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("publish to %s timed out after %v", topic, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func qosToByte(qos QoS) (byte, bool) {
	if qos > ExactlyOnce {
		return 0, false
	}
	return byte(qos), true
}

// Subscribe registers handler and waits for the SUBACK.
func (b *MsgBroker) Subscribe(ctx context.Context, topic string, qos QoS, handler func(context.Context, string, []byte)) (Subscription, error) {
	if b.client == nil {
		return nil, errors.New("mqtt client not initialized")
	}
	// Handlers run on their own goroutine so a slow one cannot stall paho.
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("MQTT handler panic", zap.String("topic", msg.Topic()), zap.Any("panic", r))
				}
			}()
			handler(ctx, msg.Topic(), msg.Payload())
		}()
	}

	token := b.client.Subscribe(topic, byte(qos), onMessage)
	timeout := b.config.SubscribeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("subscribe timeout for %s", topic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b.mu.Lock()
	b.subs[topic] = onMessage
	b.qos[topic] = byte(qos)
	b.mu.Unlock()
	return &msgSubscription{broker: b, topic: topic}, nil
}

type msgSubscription struct {
	broker *MsgBroker
	topic  string
}

func (s *msgSubscription) Unsubscribe(ctx context.Context) error {
	b := s.broker
	b.mu.Lock()
	delete(b.subs, s.topic)
	delete(b.qos, s.topic)
	b.mu.Unlock()

	token := b.client.Unsubscribe(s.topic)
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(3 * time.Second):
		return fmt.Errorf("unsubscribe timeout for %s", s.topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

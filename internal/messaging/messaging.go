// Package messaging reports device state over MQTT and accepts commands
// from it.
//
// Topics, for prefix "smartrelay" and device "office light":
//
//	smartrelay/office_light/state         retained JSON state, published on change
//	smartrelay/office_light/availability  retained "online" / "offline" (last will)
//	smartrelay/office_light/set           ON, OFF, TOGGLE or {"on": true}
//
// Commands received on the set topic are submitted to the poll loop; the
// MQTT client never touches the controller.
package messaging

import (
	"context"
	"strings"
)

// QoS is an MQTT quality of service level.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
	// AsyncNoWait publishes at QoS 0 without waiting for the token.
	AsyncNoWait QoS = 3
)

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// Broker is the part of an MQTT client the bridge needs.
type Broker interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error
	Subscribe(ctx context.Context, topic string, qos QoS, handler func(ctx context.Context, topic string, payload []byte)) (Subscription, error)
	IsConnected() bool
}

// Slug turns a device name into a topic level: lower case, spaces and
// MQTT wildcards replaced by underscores.
func Slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '+', '#', '\t':
			return '_'
		}
		return r
	}, name)
}

// Topics are the per-device topic names.
type Topics struct {
	State        string
	Availability string
	Set          string
}

// TopicsFor builds the topics of device name under prefix.
func TopicsFor(prefix, name string) Topics {
	base := strings.TrimSuffix(prefix, "/") + "/" + Slug(name)
	return Topics{
		State:        base + "/state",
		Availability: base + "/availability",
		Set:          base + "/set",
	}
}

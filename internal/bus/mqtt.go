package bus

import "github.com/nerrad567/astrobridge/internal/infrastructure/mqtt"

// MQTT adapts the infrastructure MQTT client to Bus. Every message uses
// the client's configured QoS and is not retained.
type MQTT struct {
	client *mqtt.Client
	qos    byte
}

// NewMQTT wraps a connected client.
func NewMQTT(client *mqtt.Client) *MQTT {
	return &MQTT{client: client, qos: client.QoS()}
}

func (m *MQTT) Publish(topic string, payload []byte) error {
	return m.client.Publish(topic, payload, m.qos, false)
}

func (m *MQTT) Subscribe(filter string, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	return m.client.Subscribe(filter, m.qos, mqtt.MessageHandler(h))
}

func (m *MQTT) Unsubscribe(filter string) error {
	return m.client.Unsubscribe(filter)
}

package universe

import (
	"context"

	"github.com/nerrad567/plc-core/internal/infrastructure/mqtt"
)

// Subscriber is the part of *mqtt.Client an MQTTSource needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Publisher is the part of *mqtt.Client an MQTTSink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSource reads raw frames published on an MQTT topic. Each payload is
// one frame, byte i holding channel i+1.
type MQTTSource struct {
	client Subscriber
	topic  string
	qos    byte
}

// NewMQTTSource returns a source subscribed to topic once opened.
func NewMQTTSource(client Subscriber, topic string, qos byte) *MQTTSource {
	return &MQTTSource{client: client, topic: topic, qos: qos}
}

// Open subscribes to the input topic.
func (s *MQTTSource) Open(_ context.Context) (<-chan []byte, error) {
	frames := make(chan []byte, 1)
	err := s.client.Subscribe(s.topic, s.qos, func(_ string, payload []byte) error {
		offer(frames, append([]byte(nil), payload...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// Close unsubscribes.
func (s *MQTTSource) Close() error {
	return s.client.Unsubscribe(s.topic)
}

// MQTTSink publishes every output frame to an MQTT topic.
type MQTTSink struct {
	client Publisher
	topic  string
	qos    byte
}

// NewMQTTSink returns a sink publishing to topic.
func NewMQTTSink(client Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, qos: qos}
}

// Write publishes frame.
func (s *MQTTSink) Write(_ context.Context, frame []byte) error {
	return s.client.Publish(s.topic, frame, s.qos, false)
}

// Close is a no-op; the MQTT client is owned by the caller.
func (s *MQTTSink) Close() error { return nil }

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/thumbtrial/internal/trial"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

const connectTimeout = 5 * time.Second

// MQTTOptions configures an MQTTSink.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// MQTTSink publishes each packet as JSON to a broker topic.
type MQTTSink struct {
	opts   MQTTOptions
	client mqtt.Client
}

// NewMQTTSink creates a sink with a paho client configured to reconnect
// automatically. Call Connect before sending.
func NewMQTTSink(opts MQTTOptions) *MQTTSink {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		log.Printf("MQTT connected to %s", opts.Broker)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}

	return newMQTTSink(opts, mqtt.NewClient(co))
}

func newMQTTSink(opts MQTTOptions, client mqtt.Client) *MQTTSink {
	return &MQTTSink{opts: opts, client: client}
}

// Connect establishes the broker connection. With connect retry enabled the
// client keeps trying in the background after a timeout.
func (s *MQTTSink) Connect(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Name implements Sink.
func (s *MQTTSink) Name() string {
	return "mqtt " + s.opts.Topic
}

// Send implements Sink.
func (s *MQTTSink) Send(ctx context.Context, p trial.Packet) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}

	token := s.client.Publish(s.opts.Topic, s.opts.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/thumbtrial/internal/trial"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient overrides the calls MQTTSink makes; the embedded interface
// panics on anything else.
type fakeClient struct {
	mqtt.Client
	open       bool
	publishErr error
	topic      string
	qos        byte
	payload    []byte
}

func (c *fakeClient) IsConnected() bool      { return c.open }
func (c *fakeClient) IsConnectionOpen() bool { return c.open }
func (c *fakeClient) Connect() mqtt.Token {
	c.open = true
	return completedToken(nil)
}
func (c *fakeClient) Disconnect(uint) { c.open = false }
func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.qos = qos
	c.payload = payload.([]byte)
	return completedToken(c.publishErr)
}

func TestMQTTSink_NotConnected(t *testing.T) {
	s := newMQTTSink(MQTTOptions{Topic: "t"}, &fakeClient{})
	if err := s.Send(context.Background(), trial.Packet{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestMQTTSink_Publishes(t *testing.T) {
	c := &fakeClient{}
	s := newMQTTSink(MQTTOptions{Topic: "thumbtrial/trials", QoS: 1}, c)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Send(context.Background(), trial.Packet{ID: "x", Trial: 2}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if c.topic != "thumbtrial/trials" || c.qos != 1 {
		t.Errorf("unexpected publish target %q qos %d", c.topic, c.qos)
	}
	var decoded trial.Packet
	if err := json.Unmarshal(c.payload, &decoded); err != nil {
		t.Fatalf("payload is not a packet: %v", err)
	}
	if decoded.ID != "x" || decoded.Trial != 2 {
		t.Errorf("unexpected payload %+v", decoded)
	}

	s.Close()
	if c.open {
		t.Error("expected Close to disconnect")
	}
}

func TestMQTTSink_PublishError(t *testing.T) {
	c := &fakeClient{open: true, publishErr: errors.New("denied")}
	s := newMQTTSink(MQTTOptions{Topic: "t"}, c)

	if err := s.Send(context.Background(), trial.Packet{}); err == nil {
		t.Error("expected publish error")
	}
}

func TestNewMQTTSink_Name(t *testing.T) {
	s := NewMQTTSink(MQTTOptions{Broker: "tcp://127.0.0.1:1", Topic: "a/b", ClientID: "test"})
	if s.Name() != "mqtt a/b" {
		t.Errorf("unexpected name %q", s.Name())
	}
}

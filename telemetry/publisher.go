package telemetry

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Publisher sends snapshots somewhere.
type Publisher interface {
	Publish(s Snapshot) error
	Close() error
}

// MQTTOptions configures an MQTTPublisher.
type MQTTOptions struct {
	Broker   string
	ClientID string // empty picks a random one
	Topic    string
	QoS      byte
	Retain   bool
}

// MQTTPublisher publishes CBOR snapshots to a broker. It announces itself on
// Topic+"/online" and leaves a will that clears it.
type MQTTPublisher struct {
	client paho.Client
	opts   MQTTOptions
}

const mqttTimeout = 10 * time.Second

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "sparkcore-" + uuid.NewString()
	}
	online := opts.Topic + "/online"
	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(online, "false", opts.QoS, true)

	client := paho.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	p := &MQTTPublisher{client: client, opts: opts}
	if err := p.publish(online, []byte("true"), true); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return p, nil
}

// Publish sends one snapshot.
func (p *MQTTPublisher) Publish(s Snapshot) error {
	payload, err := Encode(s)
	if err != nil {
		return err
	}
	return p.publish(p.opts.Topic, payload, p.opts.Retain)
}

func (p *MQTTPublisher) publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, p.opts.QoS, retain, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports the broker connection state.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close marks the controller offline and disconnects.
func (p *MQTTPublisher) Close() error {
	err := p.publish(p.opts.Topic+"/online", []byte("false"), true)
	p.client.Disconnect(250)
	return err
}

// FakePublisher records snapshots for tests.
type FakePublisher struct {
	Snapshots []Snapshot
	Payloads  [][]byte

	// PublishError, if set, is returned by Publish.
	PublishError error
	Closed       bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(s Snapshot) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := Encode(s)
	if err != nil {
		return err
	}
	f.Snapshots = append(f.Snapshots, s)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// Reset forgets everything recorded.
func (f *FakePublisher) Reset() {
	f.Snapshots = nil
	f.Payloads = nil
	f.PublishError = nil
	f.Closed = false
}

// Package sensor publishes the current-intensity sensor state to the host
// platform.
package sensor

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultQoS            = 1
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMS   = 250
)

type MQTTOptions struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	Timeout     time.Duration
}

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher writes retained state messages to <prefix>/<location>/state.
type MQTTPublisher struct {
	client  mqttClient
	prefix  string
	timeout time.Duration
}

// NewMQTTPublisher connects to the broker. A random suffix keeps client ids
// unique when no id is configured.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	broker := strings.TrimSpace(opts.Broker)
	if broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = "carbon-aware-home-" + uuid.New().String()[:8]
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return newMQTTPublisher(client, opts.TopicPrefix, timeout), nil
}

func newMQTTPublisher(client mqttClient, prefix string, timeout time.Duration) *MQTTPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "carbon_aware_home"
	}
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &MQTTPublisher{client: client, prefix: prefix, timeout: timeout}
}

func (p *MQTTPublisher) Topic(location string) string {
	return p.prefix + "/" + strings.ToLower(location) + "/state"
}

func (p *MQTTPublisher) Publish(ctx context.Context, location string, payload []byte) error {
	topic := p.Topic(location)
	token := p.client.Publish(topic, defaultQoS, true, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("mqtt publish %s: timed out after %s", topic, p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesceMS)
	return nil
}

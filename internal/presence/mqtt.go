package presence

import (
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MQTTOptions configure the broker-backed presence source.
type MQTTOptions struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string // suffixed with a random id to allow parallel instances
	Username string
	Password string
	Topic    string
	QoS      byte
}

// MQTTSource consumes the same user_status JSON payload from a broker topic.
// Deployments that already run a broker for the data plane can point the grid
// at it instead of the websocket feed; reconnection is delegated to the paho
// client's auto-reconnect.
type MQTTSource struct {
	opts   MQTTOptions
	logger *zap.Logger
	client mqtt.Client

	mu   sync.Mutex
	subs []Subscriber
}

// NewMQTTSource builds the source; it does not connect until Connect is called.
func NewMQTTSource(opts MQTTOptions, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{opts: opts, logger: logger}
}

func (m *MQTTSource) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, s)
}

// Connect dials the broker and subscribes to the presence topic.
func (m *MQTTSource) Connect() error {
	clientID := fmt.Sprintf("%s-%s", m.opts.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.opts.Broker)
	opts.SetClientID(clientID)
	if m.opts.Username != "" {
		opts.SetUsername(m.opts.Username)
	}
	if m.opts.Password != "" {
		opts.SetPassword(m.opts.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if token := client.Subscribe(m.opts.Topic, m.opts.QoS, m.onMessage); token.Wait() && token.Error() != nil {
			m.logger.Error("mqtt subscribe failed",
				zap.String("topic", m.opts.Topic),
				zap.Error(token.Error()),
			)
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		m.logger.Warn("mqtt presence connection lost", zap.Error(err))
	})

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	m.logger.Info("mqtt presence source connected",
		zap.String("broker", m.opts.Broker),
		zap.String("topic", m.opts.Topic),
	)
	return nil
}

func (m *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	delta, ok := decodeFrame(msg.Payload(), m.logger)
	if !ok {
		return
	}
	m.mu.Lock()
	subs := make([]Subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, s := range subs {
		s.OnPresenceDelta(delta)
	}
}

// Close disconnects from the broker.
func (m *MQTTSource) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

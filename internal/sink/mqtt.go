package sink

import (
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/config"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/logging"
)

// MQTTPasswordEnvVar holds the broker password; it is never stored in the
// config file.
const MQTTPasswordEnvVar = "DLTTAP_MQTT_PASSWORD"

// publisher is the part of mqtt.Client the sink uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes every record to <prefix>/<ecu>/<app>/<ctx>
type MQTT struct {
	client   publisher
	prefix   string
	encoding string
	qos      byte
	retained bool
	timeout  time.Duration
}

// NewMQTT connects to the broker. Paho keeps reconnecting on its own after
// the first connection succeeded.
func NewMQTT(cfg *config.MQTTConfig) (*MQTT, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "dlttap-" + uuid.NewString()[:8]
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(os.Getenv(MQTTPasswordEnvVar))
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logging.Info("MQTT connected", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	return newMQTT(client, cfg, timeout), nil
}

func newMQTT(client publisher, cfg *config.MQTTConfig, timeout time.Duration) *MQTT {
	return &MQTT{
		client:   client,
		prefix:   cfg.TopicPrefix,
		encoding: cfg.Encoding,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  timeout,
	}
}

// Name implements Sink
func (m *MQTT) Name() string { return "mqtt" }

// Write publishes one record and waits for the broker for QoS > 0
func (m *MQTT) Write(r *format.Record) error {
	payload, err := format.Marshal(m.encoding, r)
	if err != nil {
		return err
	}
	token := m.client.Publish(r.Topic(m.prefix), m.qos, m.retained, payload)
	if m.qos == 0 {
		return nil
	}
	if !token.WaitTimeout(m.timeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

// Close disconnects, giving in-flight messages a moment to go out
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

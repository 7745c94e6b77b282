package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"
)

const mqttPublishTimeout = 2 * time.Second

// MQTTMirror republishes distance updates as retained messages on
// <prefix>/<kind>/<id>, so scoreboards outside the websocket stream always
// see the latest total.
type MQTTMirror struct {
	client  mqtt.Client
	prefix  string
	log     *slog.Logger
	metrics *metrics.Metrics
}

// DialMQTT connects to broker (host:port) and returns a mirror publishing
// under prefix.
func DialMQTT(broker, clientID, prefix string, log *slog.Logger, m *metrics.Metrics) (*MQTTMirror, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connection established", "broker", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return NewMQTTMirror(client, prefix, log, m), nil
}

func NewMQTTMirror(client mqtt.Client, prefix string, log *slog.Logger, m *metrics.Metrics) *MQTTMirror {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTMirror{client: client, prefix: prefix, log: log, metrics: m}
}

func (m *MQTTMirror) Topic(kind participant.Kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", m.prefix, kind, id)
}

// PublishDistance does not wait for the broker; failures are logged.
func (m *MQTTMirror) PublishDistance(kind participant.Kind, id string, distance float64) {
	payload, _ := json.Marshal(participant.DistanceUpdate{Distance: &distance})
	topic := m.Topic(kind, id)

	token := m.client.Publish(topic, 1, true, payload)
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			m.log.Warn("mqtt publish timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			m.log.Warn("mqtt publish failed", "topic", topic, "error", err)
			return
		}
		m.metrics.IncPublishes("mqtt_" + string(kind))
	}()
}

func (m *MQTTMirror) Close() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

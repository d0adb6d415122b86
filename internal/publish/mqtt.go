// Package publish forwards decoded readings to an MQTT broker as they
// arrive, for live dashboards. Publishing is strictly best-effort: a
// broker outage never affects the recording session.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/srg/senselog/internal/protocol"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher publishes one JSON message per reading to
// senselog/<device>/acc.
type Publisher struct {
	client mqtt.Client
	device string
	topic  string
	logger *logrus.Logger
}

// telemetry is the published message shape.
type telemetry struct {
	Device         string  `json:"device"`
	Timestamp      uint32  `json:"timestamp"`
	TimestampLocal string  `json:"timestamp_local"`
	Ax             float64 `json:"ax"`
	Ay             float64 `json:"ay"`
	Az             float64 `json:"az"`
}

// NewPublisher connects to the broker at brokerURL (e.g.
// tcp://host:1883) and returns a publisher for the given device
// address.
func NewPublisher(brokerURL, deviceAddress string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("senselog-%d", time.Now().UnixNano()))
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %q: timeout", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %q: %w", brokerURL, err)
	}

	logger.WithField("broker", brokerURL).Info("MQTT connected")
	return &Publisher{
		client: client,
		device: deviceAddress,
		topic:  topicFor(deviceAddress),
		logger: logger,
	}, nil
}

// Publish sends one reading. Errors are returned for the caller to log;
// they never carry session-fatal meaning.
func (p *Publisher) Publish(r protocol.Reading) error {
	payload, err := payloadFor(p.device, r)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %q: timeout", p.topic)
	}
	return token.Error()
}

// Close disconnects from the broker, letting in-flight messages drain
// briefly.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
	p.logger.Debug("MQTT disconnected")
}

// topicFor derives the per-device topic.
func topicFor(deviceAddress string) string {
	return fmt.Sprintf("senselog/%s/acc", deviceAddress)
}

// payloadFor renders the JSON message for a reading. Split out from
// Publish so the message shape is testable without a broker.
func payloadFor(device string, r protocol.Reading) ([]byte, error) {
	data, err := json.Marshal(telemetry{
		Device:         device,
		Timestamp:      r.SensorMillis,
		TimestampLocal: r.Received.Format(time.RFC3339Nano),
		Ax:             r.Ax,
		Ay:             r.Ay,
		Az:             r.Az,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal telemetry: %w", err)
	}
	return data, nil
}

package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/soil-moisture-monitor/pkg/config"
	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/ericogr/soil-moisture-monitor/pkg/output"
)

const (
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "soil-moisture-monitor"
	DefaultStateTopic = "soil/moisture"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitPercent            = "%"
	deviceClassMoisture    = "moisture"
	stateClassMeasurement  = "measurement"
	disconnectQuiesceMs    = 250
)

// entity is one Home Assistant sensor exposed from the state payload.
type entity struct {
	key      string
	template string
	unit     string
	class    string
}

var entities = []entity{
	{key: "moisture", template: "{{ value_json.moisture }}", unit: unitPercent, class: deviceClassMoisture},
	{key: "status", template: "{{ value_json.status }}"},
	{key: "mean", template: "{{ value_json.mean }}"},
}

// publisher is the subset of mqtt.Client used by the output.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client     publisher
	stateTopic string
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	applyDefaults(&cfg)
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Server).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newMQTTOutput(client, cfg), nil
}

func applyDefaults(cfg *config.MQTTConfig) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
}

func newMQTTOutput(client publisher, cfg config.MQTTConfig) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}
	if cfg.DiscoveryTopic == "" {
		return m
	}
	// Home Assistant discovery: one entity per topic when the topic has a
	// %s formatter, otherwise only the moisture percentage.
	list := entities[:1]
	if strings.Contains(cfg.DiscoveryTopic, "%s") {
		list = entities
	}
	for _, e := range list {
		topic := cfg.DiscoveryTopic
		if strings.Contains(topic, "%s") {
			topic = fmt.Sprintf(topic, e.key)
		}
		payload := discoveryPayload(cfg, e, m.stateTopic)
		if err := publishJSON(client, topic, true, payload); err != nil {
			log.Printf("mqtt discovery publish error: %v", err)
		}
	}
	return m
}

type statePayload struct {
	Mean      int     `json:"mean"`
	Status    string  `json:"status"`
	Moisture  float64 `json:"moisture"`
	Raw       []int   `json:"raw"`
	Timestamp string  `json:"timestamp"`
}

func (m *MQTTOutput) Publish(r moisture.Report) error {
	payload := statePayload{
		Mean:      r.Mean,
		Status:    r.Status,
		Moisture:  round2(r.Percent),
		Raw:       r.Raw,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
	}
	return publishJSON(m.client, m.stateTopic, false, payload)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func discoveryName(cfg config.MQTTConfig, e entity) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("Soil %s", cfg.ClientID)
	}
	return fmt.Sprintf("%s %s", name, e.key)
}

func discoveryUniqueID(cfg config.MQTTConfig, e entity) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", uid, e.key)
}

func discoveryPayload(cfg config.MQTTConfig, e entity, stateTopic string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                discoveryName(cfg, e),
		keyStateTopic:          stateTopic,
		keyValueTemplate:       e.template,
		keyJSONAttributesTopic: stateTopic,
	}
	if e.unit != "" {
		payload[keyUnitOfMeasurement] = e.unit
		payload[keyStateClass] = stateClassMeasurement
	}
	if e.class != "" {
		payload[keyDeviceClass] = e.class
	}
	if uid := discoveryUniqueID(cfg, e); uid != "" {
		payload[keyUniqueID] = uid
	}
	return payload
}

func publishJSON(client publisher, topic string, retained bool, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}

// Package diag holds optional observers that export switch diagnostics
// to the outside world. None of them can influence the switch: failures
// are logged and otherwise ignored.
package diag

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// publisher is the part of mqtt.Client the observer needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTObserver publishes calibration results and latch transitions as
// JSON. Samples are published on every SampleEvery-th measurement only.
type MQTTObserver struct {
	client  publisher
	topic   string
	every   uint64
	count   uint64
	closeFn func()
}

type calibrationMsg struct {
	Neutral  ppm.PulseSample `json:"neutral"`
	Forward  ppm.PulseSample `json:"forward"`
	Backward ppm.PulseSample `json:"backward"`
	Time     time.Time       `json:"time"`
}

type transitionMsg struct {
	Action   string          `json:"action"`
	Sample   ppm.PulseSample `json:"sample"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Forward  bool            `json:"forward"`
	Backward bool            `json:"backward"`
	Time     time.Time       `json:"time"`
}

type sampleMsg struct {
	Sample ppm.PulseSample `json:"sample"`
	Count  uint64          `json:"count"`
}

// NewMQTTObserver connects to the configured broker.
func NewMQTTObserver(cfg config.MQTTConfig) (*MQTTObserver, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timeout connecting to mqtt broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("can't connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	slog.Info("Connected to MQTT broker", "broker", cfg.Broker, "topic", cfg.Topic)

	o := newMQTTObserver(client, cfg.Topic, cfg.SampleEvery)
	o.closeFn = func() { client.Disconnect(250) }
	return o, nil
}

func newMQTTObserver(client publisher, topic string, every int) *MQTTObserver {
	return &MQTTObserver{client: client, topic: topic, every: uint64(max(every, 0))}
}

func (o *MQTTObserver) SampleMeasured(sample ppm.PulseSample) {
	o.count++
	if o.every == 0 || o.count%o.every != 0 {
		return
	}
	o.publish("sample", sampleMsg{Sample: sample, Count: o.count})
}

func (o *MQTTObserver) Calibrated(th ppm.Thresholds) {
	o.publishRetained("calibration", calibrationMsg{
		Neutral:  th.Neutral,
		Forward:  th.Forward,
		Backward: th.Backward,
		Time:     time.Now(),
	})
}

func (o *MQTTObserver) Transition(tr ppm.Transition) {
	o.publish("transition", transitionMsg{
		Action:   tr.Action.String(),
		Sample:   tr.Sample,
		From:     tr.From.String(),
		To:       tr.To.String(),
		Forward:  tr.Forward,
		Backward: tr.Backward,
		Time:     time.Now(),
	})
}

func (o *MQTTObserver) publish(sub string, obj interface{}) {
	o.send(sub, obj, false)
}

func (o *MQTTObserver) publishRetained(sub string, obj interface{}) {
	o.send(sub, obj, true)
}

func (o *MQTTObserver) send(sub string, obj interface{}, retained bool) {
	msg, err := json.Marshal(obj)
	if err != nil {
		slog.Error("Can't encode MQTT message", "topic", sub, "error", err)
		return
	}
	topic := o.topic + "/" + sub
	token := o.client.Publish(topic, 0, retained, msg)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			slog.Warn("MQTT publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			slog.Error("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
}

// Close disconnects from the broker.
func (o *MQTTObserver) Close() error {
	if o.closeFn != nil {
		o.closeFn()
	}
	return nil
}

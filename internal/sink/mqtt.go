// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

var ErrPublishTimeout = errors.New("sink: mqtt publish timed out")

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Topic is the MQTT topic carrying events from src.
func Topic(prefix string, src event.SourceID) string {
	return strings.TrimSuffix(prefix, "/") + "/" + src.String()
}

// MQTTSink publishes each event as a JSON record on <prefix>/<source>.
type MQTTSink struct {
	pub        Publisher
	prefix     string
	timeout    time.Duration
	disconnect func()
	published  int
}

func NewMQTTSink(pub Publisher, prefix string) *MQTTSink {
	return &MQTTSink{pub: pub, prefix: prefix, timeout: 5 * time.Second}
}

// DialMQTT connects to broker and returns a sink that disconnects on Close.
func DialMQTT(broker, clientID, prefix string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.WithFields(log.Fields{"broker": broker, "prefix": prefix}).Info("connected to MQTT broker")

	s := NewMQTTSink(client, prefix)
	s.disconnect = func() { client.Disconnect(250) }
	return s, nil
}

func (s *MQTTSink) Write(ev event.Event) error {
	payload, err := json.Marshal(recording.Record{
		ID:        ev.Source.String(),
		Timestamp: ev.Timestamp,
		Values:    ev.Channels(),
	})
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", ev.Source, err)
	}
	topic := Topic(s.prefix, ev.Source)
	token := s.pub.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish (%s): %w", topic, err)
	}
	s.published++
	return nil
}

// Published is the number of acknowledged publishes.
func (s *MQTTSink) Published() int { return s.published }

func (s *MQTTSink) Close() error {
	if s.disconnect != nil {
		s.disconnect()
	}
	return nil
}

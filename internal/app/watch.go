// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_replay/internal/config"
	"github.com/relabs-tech/inertial_replay/internal/event"
	"github.com/relabs-tech/inertial_replay/internal/orientation"
	"github.com/relabs-tech/inertial_replay/internal/recording"
)

// FormatRecord renders one published record as a console line.
func FormatRecord(rec recording.Record) string {
	src, ok := event.ParseSourceName(rec.ID)
	v := func(i int) float64 {
		if i < len(rec.Values) {
			return rec.Values[i]
		}
		return 0
	}
	switch {
	case ok && src == event.Euler:
		return fmt.Sprintf("[POSE] t=%10.3f  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f",
			rec.Timestamp, orientation.RadToDeg(v(0)), orientation.RadToDeg(v(1)), orientation.RadToDeg(v(2)))
	case ok && src == event.Orientation:
		return fmt.Sprintf("[QUAT] t=%10.3f  w=%7.4f x=%7.4f y=%7.4f z=%7.4f",
			rec.Timestamp, v(0), v(1), v(2), v(3))
	case ok && src == event.DominantFrequency:
		return fmt.Sprintf("[FFT ] t=%10.3f  bin=%3.0f  %.2f Hz  |X|=%.3f",
			rec.Timestamp, v(0), v(1), v(2))
	case ok && src == event.Threshold:
		return fmt.Sprintf("[MAG ] t=%10.3f  residual=%+.4f  norm=%.4f",
			rec.Timestamp, v(0), v(1))
	}
	parts := make([]string, len(rec.Values))
	for i, x := range rec.Values {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return fmt.Sprintf("[%s] t=%10.3f  %s", rec.ID, rec.Timestamp, strings.Join(parts, " "))
}

// RunWatch prints every derived event published under the configured
// prefix until ctx is cancelled.
func RunWatch(ctx context.Context, cfg *config.Config, out io.Writer) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-watch").
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("watch: connected to MQTT broker at %s", cfg.MQTTBroker)

	var mu sync.Mutex
	topic := strings.TrimSuffix(cfg.MQTTTopicPrefix, "/") + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var rec recording.Record
		if err := json.Unmarshal(msg.Payload(), &rec); err != nil {
			log.Warnf("watch: %s unmarshal error: %v", msg.Topic(), err)
			return
		}
		mu.Lock()
		fmt.Fprintln(out, FormatRecord(rec))
		mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return token.Error()
	}
	log.Infof("watch: subscribed to %s", topic)

	<-ctx.Done()

	log.Info("watch: shutting down")
	client.Disconnect(250)
	return nil
}

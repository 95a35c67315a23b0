// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/mag"
	"github.com/relabs-tech/compass/internal/sensors"
)

// HeadingReport is the JSON schema published on the heading topic.
type HeadingReport struct {
	heading.Heading
	Declination float64 `json:"declination"`
	Source      string  `json:"source"`
	Time        string  `json:"time"`
}

// NewHeadingReport derives the heading of s. Overflowed samples carry no
// usable direction and return false.
func NewHeadingReport(s mag.Sample, declination float64) (HeadingReport, bool) {
	if s.Overflow {
		return HeadingReport{}, false
	}
	return HeadingReport{
		Heading:     heading.FromField(s.Bx, s.By, declination),
		Declination: declination,
		Source:      s.Source,
		Time:        s.Time,
	}, true
}

// connectMQTT connects a client with the given id to the configured broker.
func connectMQTT(cfg *config.Config, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	return client, nil
}

func publishJSON(client mqtt.Client, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", topic, err)
	}
	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt publish (%s): %w", topic, token.Error())
	}
	return nil
}

// RunMagProducer reads the magnetometer (or the mock) and publishes samples
// and headings until SIGINT/SIGTERM.
func RunMagProducer(useMock bool) error {
	cfg := config.Get()

	var src mag.Source
	if useMock {
		log.Println("mag_producer: using mock magnetometer")
		src = heading.NewMockSource()
	} else {
		ms, err := sensors.NewMagSource(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := ms.Close(); err != nil {
				log.Printf("mag_producer: close: %v", err)
			}
		}()
		log.Printf("mag_producer: using QMC5883P %s", ms.Name())
		src = ms
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("mag_producer: connected to %s, publishing %s and %s every %s",
		cfg.MQTTBroker, cfg.TopicMag, cfg.TopicHeading, cfg.SampleInterval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.SampleInterval())
	defer ticker.Stop()

	// one log line per second is plenty
	logEvery := int(time.Second / cfg.SampleInterval())
	if logEvery < 1 {
		logEvery = 1
	}

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			log.Println("mag_producer: shutting down")
			return nil
		case <-ticker.C:
		}

		s, err := src.Next()
		if err != nil {
			log.Printf("mag_producer: read error: %v", err)
			continue
		}
		if err := publishJSON(client, cfg.TopicMag, s); err != nil {
			log.Printf("mag_producer: %v", err)
			continue
		}

		h, ok := NewHeadingReport(s, cfg.MagDeclinationDeg)
		if !ok {
			log.Printf("mag_producer: overflow on %s range, heading skipped", s.Range)
			continue
		}
		if err := publishJSON(client, cfg.TopicHeading, h); err != nil {
			log.Printf("mag_producer: %v", err)
			continue
		}

		if n%logEvery == 0 {
			log.Printf("%s mag x=%6d y=%6d z=%6d | B=(%.3f, %.3f, %.3f) G |B|=%.3f G | heading %.1f° %s",
				s.Time, s.X, s.Y, s.Z, s.Bx, s.By, s.Bz, s.Norm, h.Degrees, h.Cardinal)
		}
	}
}

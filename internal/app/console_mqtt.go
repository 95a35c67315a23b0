package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/mag"
)

// FormatSample renders a sample as one console line.
func FormatSample(s mag.Sample) string {
	line := fmt.Sprintf(
		"[MAG ] x=%6d y=%6d z=%6d  Bx=%7.3f By=%7.3f Bz=%7.3f G  |B|=%.3f G  %s",
		s.X, s.Y, s.Z, s.Bx, s.By, s.Bz, s.Norm, s.Range,
	)
	if s.Overflow {
		line += "  OVERFLOW"
	}
	return line
}

// FormatHeading renders a heading report as one console line.
func FormatHeading(h HeadingReport) string {
	return fmt.Sprintf("[HDG ] %6.1f° %-3s (declination %+.1f°)", h.Degrees, h.Cardinal, h.Declination)
}

func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	magToken := client.Subscribe(cfg.TopicMag, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s mag.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: mag unmarshal error: %v", err)
			return
		}
		fmt.Println(FormatSample(s))
	})
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicMag)

	headingToken := client.Subscribe(cfg.TopicHeading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var h HeadingReport
		if err := json.Unmarshal(msg.Payload(), &h); err != nil {
			log.Printf("console: heading unmarshal error: %v", err)
			return
		}
		fmt.Println(FormatHeading(h))
	})
	headingToken.Wait()
	if headingToken.Error() != nil {
		return headingToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicHeading)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

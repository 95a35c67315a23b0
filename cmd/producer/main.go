package main

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/compass/internal/heading"
)

func main() {
	log.Println("starting compass MQTT producer (mock)")

	// Connect to the broker on the Pi
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://localhost:1883").
		SetClientID("compass-producer-mock")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	src := heading.NewMockSource()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		s, err := src.Next()
		if err != nil {
			log.Printf("error from mock source: %v", err)
			continue
		}

		payload, err := json.Marshal(s)
		if err != nil {
			log.Printf("json marshal error: %v", err)
			continue
		}

		token := client.Publish("compass/mag", 0, true, payload)
		token.Wait()

		h := heading.FromField(s.Bx, s.By, 0)
		log.Printf("%s published mag: |B|=%.3f G heading %.1f° %s", t.Format(time.RFC3339), s.Norm, h.Degrees, h.Cardinal)
	}
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/mag"
	"github.com/relabs-tech/compass/internal/sensors"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	sample  mag.Sample
	haveMag bool

	heading     HeadingReport
	haveHeading bool
}

func (d *DisplayData) setSample(s mag.Sample) {
	d.mu.Lock()
	d.sample = s
	d.haveMag = true
	d.mu.Unlock()
}

func (d *DisplayData) setHeading(h HeadingReport) {
	d.mu.Lock()
	d.heading = h
	d.haveHeading = true
	d.mu.Unlock()
}

// Lines returns the text shown for content: "gauss", "heading" or "raw".
func (d *DisplayData) Lines(content string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch content {
	case "gauss":
		if !d.haveMag {
			return []string{"Field (G)", "Waiting..."}, nil
		}
		s := d.sample
		lines := []string{
			fmt.Sprintf("X: %7.3f", s.Bx),
			fmt.Sprintf("Y: %7.3f", s.By),
			fmt.Sprintf("Z: %7.3f", s.Bz),
			fmt.Sprintf("|B| %.3f %s", s.Norm, s.Range),
		}
		if s.Overflow {
			lines[3] = "OVERFLOW " + s.Range
		}
		return lines, nil

	case "heading":
		if !d.haveHeading {
			return []string{"Heading", "Waiting..."}, nil
		}
		h := d.heading
		return []string{
			"Heading",
			fmt.Sprintf("%5.1f deg %s", h.Degrees, h.Cardinal),
			fmt.Sprintf("decl %+.1f", h.Declination),
		}, nil

	case "raw":
		if !d.haveMag {
			return []string{"Raw counts", "Waiting..."}, nil
		}
		s := d.sample
		return []string{
			fmt.Sprintf("X: %6d", s.X),
			fmt.Sprintf("Y: %6d", s.Y),
			fmt.Sprintf("Z: %6d", s.Z),
			s.Range,
		}, nil

	default:
		return nil, fmt.Errorf("unknown display content type: %s", content)
	}
}

// renderLines draws up to four lines of text into a frame.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= displayHeight/lineHeight {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

func showSplash(dev *ssd1306.Dev) error {
	img := renderLines([]string{"", "QMC5883P", "Compass"})
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func RunDisplay() error {
	cfg := config.Get()

	bus, err := sensors.OpenBus(cfg.QMCI2CBus, 0)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized on %s", bus)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeForContent(client, cfg, data); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Printf("display: showing %s", cfg.DisplayContent)

	for {
		select {
		case <-ctx.Done():
			log.Println("display: shutting down")
			return nil
		case <-ticker.C:
		}
		lines, err := data.Lines(cfg.DisplayContent)
		if err != nil {
			return err
		}
		if err := dev.Draw(dev.Bounds(), renderLines(lines), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

func subscribeForContent(client mqtt.Client, cfg *config.Config, data *DisplayData) error {
	switch cfg.DisplayContent {
	case "gauss", "raw":
		token := client.Subscribe(cfg.TopicMag, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var s mag.Sample
			if err := json.Unmarshal(msg.Payload(), &s); err != nil {
				log.Printf("display: mag unmarshal error: %v", err)
				return
			}
			data.setSample(s)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("display: subscribed to %s", cfg.TopicMag)

	case "heading":
		token := client.Subscribe(cfg.TopicHeading, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var h HeadingReport
			if err := json.Unmarshal(msg.Payload(), &h); err != nil {
				log.Printf("display: heading unmarshal error: %v", err)
				return
			}
			data.setHeading(h)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("display: subscribed to %s", cfg.TopicHeading)

	default:
		return fmt.Errorf("unknown display content type: %s", cfg.DisplayContent)
	}
	return nil
}

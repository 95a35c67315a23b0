package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/mag"
)

// LiveMessage is pushed to /ws clients on every update.
type LiveMessage struct {
	Type    string         `json:"type"` // "mag" or "heading"
	Mag     *mag.Sample    `json:"mag,omitempty"`
	Heading *HeadingReport `json:"heading,omitempty"`
}

// LiveState keeps the latest sample and heading and fans them out to
// websocket clients.
type LiveState struct {
	mu          sync.RWMutex
	lastMag     mag.Sample
	haveMag     bool
	lastHeading HeadingReport
	haveHeading bool

	clientsMu sync.Mutex
	clients   map[chan LiveMessage]struct{}
}

func NewLiveState() *LiveState {
	return &LiveState{clients: make(map[chan LiveMessage]struct{})}
}

// UpdateMag stores s and pushes it to listeners.
func (l *LiveState) UpdateMag(s mag.Sample) {
	l.mu.Lock()
	l.lastMag = s
	l.haveMag = true
	l.mu.Unlock()
	l.broadcast(LiveMessage{Type: "mag", Mag: &s})
}

// UpdateHeading stores h and pushes it to listeners.
func (l *LiveState) UpdateHeading(h HeadingReport) {
	l.mu.Lock()
	l.lastHeading = h
	l.haveHeading = true
	l.mu.Unlock()
	l.broadcast(LiveMessage{Type: "heading", Heading: &h})
}

// broadcast drops the message for clients that are not keeping up.
func (l *LiveState) broadcast(m LiveMessage) {
	l.clientsMu.Lock()
	defer l.clientsMu.Unlock()
	for ch := range l.clients {
		select {
		case ch <- m:
		default:
		}
	}
}

func (l *LiveState) subscribe() chan LiveMessage {
	ch := make(chan LiveMessage, 16)
	l.clientsMu.Lock()
	l.clients[ch] = struct{}{}
	l.clientsMu.Unlock()
	return ch
}

func (l *LiveState) unsubscribe(ch chan LiveMessage) {
	l.clientsMu.Lock()
	delete(l.clients, ch)
	l.clientsMu.Unlock()
}

// HandleMag serves the latest sample.
func (l *LiveState) HandleMag(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.haveMag {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, l.lastMag)
}

// HandleHeading serves the latest heading.
func (l *LiveState) HandleHeading(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.haveHeading {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, l.lastHeading)
}

// HandleWS pushes every update to the client until it disconnects.
func (l *LiveState) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := l.subscribe()
	defer l.unsubscribe(ch)

	// The reader only notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case m := <-ch:
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
	}
}

// Routes registers the API endpoints on mux.
func (l *LiveState) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/mag", l.HandleMag)
	mux.HandleFunc("/api/heading", l.HandleHeading)
	mux.HandleFunc("/ws", l.HandleWS)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func RunWeb() error {
	cfg := config.Get()
	state := NewLiveState()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicMag, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s mag.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("MQTT payload unmarshal error (%s): %v", cfg.TopicMag, err)
			return
		}
		state.UpdateMag(s)
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicMag)

	token = client.Subscribe(cfg.TopicHeading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var h HeadingReport
		if err := json.Unmarshal(msg.Payload(), &h); err != nil {
			log.Printf("MQTT payload unmarshal error (%s): %v", cfg.TopicHeading, err)
			return
		}
		state.UpdateHeading(h)
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicHeading)

	mux := http.NewServeMux()
	state.Routes(mux)

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

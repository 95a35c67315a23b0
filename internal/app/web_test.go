package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/mag"
)

func TestLiveStateAPI(t *testing.T) {
	state := NewLiveState()
	mux := http.NewServeMux()
	state.Routes(mux)

	for _, path := range []string{"/api/mag", "/api/heading"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s before data: status %d", path, rec.Code)
		}
	}

	state.UpdateMag(mag.Sample{Source: "mock", X: 750, Bx: 0.2, Norm: 0.2})
	state.UpdateHeading(HeadingReport{Heading: heading.Heading{Degrees: 90, Cardinal: "E"}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/mag", nil))
	var s mag.Sample
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get("Content-Type") != "application/json" || s.X != 750 {
		t.Fatalf("mag = %+v (%s)", s, rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/heading", nil))
	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if raw["deg"] != 90.0 || raw["cardinal"] != "E" {
		t.Fatalf("heading = %v", raw)
	}
}

func TestLiveStateWebsocketPush(t *testing.T) {
	state := NewLiveState()
	srv := httptest.NewServer(http.HandlerFunc(state.HandleWS))
	defer srv.Close()
	conn := dialWS(t, srv, "/")

	// keep publishing until the handler has subscribed and forwarded one
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(10 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				state.UpdateHeading(HeadingReport{Heading: heading.Heading{Degrees: 180, Cardinal: "S"}})
			}
		}
	}()

	var m LiveMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	if m.Type != "heading" || m.Heading == nil || m.Heading.Cardinal != "S" || m.Mag != nil {
		t.Fatalf("message = %+v", m)
	}
}

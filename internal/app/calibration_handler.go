// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/compass/internal/calibration"
	"github.com/relabs-tech/compass/internal/mag"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	calDefaultDuration = 60 * time.Second
	calMaxDuration     = 5 * time.Minute
	calDefaultPeriod   = 20 * time.Millisecond
)

// CalibratableSource is a magnetometer whose correction can be swapped while
// it runs.
type CalibratableSource interface {
	mag.Source
	Calibration() *mag.Calibration
	SetCalibration(*mag.Calibration)
}

// CalibrationHandler runs guided magnetometer calibrations over a websocket.
// Only one calibration runs at a time.
type CalibrationHandler struct {
	Src    CalibratableSource
	OutDir string        // where calibration files are written
	Period time.Duration // sample period, 0 = 20ms

	mu      sync.Mutex
	running bool
}

// WebSocket message types
type CalWSMessage struct {
	Action     string `json:"action"`                // start, stop, cancel
	DurationMS int    `json:"duration_ms,omitempty"` // start only
}

type CalWSResponse struct {
	Type     string              `json:"type"` // progress, complete, cancelled, error, status
	Progress float64             `json:"progress,omitempty"`
	Samples  int                 `json:"samples,omitempty"`
	Result   *calibration.Result `json:"result,omitempty"`
	Filename string              `json:"filename,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// calSession serializes writes to one websocket connection.
type calSession struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *calSession) send(r CalWSResponse) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteJSON(r); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

func (s *calSession) sendError(message string) {
	s.send(CalWSResponse{Type: "error", Message: message})
}

// HandleWS handles the WebSocket connection for calibration.
func (h *CalibrationHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &calSession{conn: conn}
	var cur *calRun
	done := make(chan struct{})
	close(done)

	// A dropped connection discards whatever is being captured.
	defer func() {
		if cur != nil {
			cur.end(true)
		}
		<-done
	}()

	for {
		var msg CalWSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("calibration: websocket error: %v", err)
			}
			return
		}

		switch msg.Action {
		case "start":
			dur := time.Duration(msg.DurationMS) * time.Millisecond
			if dur <= 0 {
				dur = calDefaultDuration
			}
			if dur > calMaxDuration {
				session.sendError(fmt.Sprintf("duration too long (max %s)", calMaxDuration))
				continue
			}
			if !h.acquire() {
				session.sendError("a calibration is already running")
				continue
			}
			cur = &calRun{stop: make(chan struct{})}
			done = make(chan struct{})
			go func(c *calRun, done chan<- struct{}) {
				defer close(done)
				defer h.release()
				h.run(session, dur, c)
			}(cur, done)

		case "stop":
			if cur != nil {
				log.Printf("calibration: stopped early by user")
				cur.end(false)
				cur = nil
			}

		case "cancel":
			if cur != nil {
				log.Printf("calibration: cancelled by user")
				cur.end(true)
				cur = nil
			}

		default:
			session.sendError(fmt.Sprintf("unknown action: %s", msg.Action))
		}
	}
}

// calRun ends one capture. The first end wins: aborted runs save nothing and
// keep the previous calibration, stopped runs are computed from what was
// captured so far.
type calRun struct {
	stop chan struct{}
	once sync.Once

	mu      sync.Mutex
	aborted bool
}

func (c *calRun) end(abort bool) {
	c.once.Do(func() {
		c.mu.Lock()
		c.aborted = abort
		c.mu.Unlock()
		close(c.stop)
	})
}

func (c *calRun) wasAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

func (h *CalibrationHandler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	return true
}

func (h *CalibrationHandler) release() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func (h *CalibrationHandler) run(s *calSession, dur time.Duration, c *calRun) {
	period := h.Period
	if period <= 0 {
		period = calDefaultPeriod
	}

	// Capture uncorrected data; the previous correction comes back unless a
	// new one is saved.
	prev := h.Src.Calibration()
	h.Src.SetCalibration(nil)
	restore := true
	defer func() {
		if restore {
			h.Src.SetCalibration(prev)
		}
	}()

	log.Printf("calibration: capturing for up to %s", dur)
	s.send(CalWSResponse{Type: "status", Message: "rotate the sensor slowly through all orientations"})

	captured := make(chan struct{})
	go func() {
		start := time.Now()
		t := time.NewTicker(500 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-captured:
				return
			case <-t.C:
				p := 100 * float64(time.Since(start)) / float64(dur)
				if p > 100 {
					p = 100
				}
				s.send(CalWSResponse{Type: "progress", Progress: p})
			}
		}
	}()

	values, elapsed, timedOut, err := calibration.Capture(h.Src, period, dur, c.stop)
	close(captured)
	if err != nil {
		s.sendError(fmt.Sprintf("capture error: %v", err))
		return
	}
	if c.wasAborted() {
		log.Printf("calibration: discarded %d samples, previous calibration kept", len(values))
		s.send(CalWSResponse{Type: "cancelled", Samples: len(values), Message: "calibration cancelled, nothing saved"})
		return
	}
	if !timedOut {
		log.Printf("calibration: capture stopped early after %s", elapsed.Round(time.Millisecond))
	}

	res := calibration.Compute(values, elapsed)
	cal := res.Calibration(time.Now())

	filename := fmt.Sprintf("mag_calibration_%d.json", time.Now().Unix())
	path := filepath.Join(h.OutDir, filename)
	if err := cal.Save(path); err != nil {
		s.sendError(fmt.Sprintf("failed to write calibration file: %v", err))
		return
	}
	log.Printf("calibration: saved results to %s (confidence %.2f, %d samples)", path, res.Confidence, len(values))

	h.Src.SetCalibration(cal)
	restore = false

	s.send(CalWSResponse{
		Type:     "complete",
		Progress: 100,
		Samples:  len(values),
		Result:   &res,
		Filename: filename,
	})
}

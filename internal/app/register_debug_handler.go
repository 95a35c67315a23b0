// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/compass/internal/mag"
	"github.com/relabs-tech/compass/internal/qmc5883p"
	"github.com/relabs-tech/compass/internal/sensors"
)

// RegisterDevice is the chip access the register debug tool needs.
type RegisterDevice interface {
	mag.Source
	Name() string
	ReadRegister(addr byte) (byte, error)
	WriteRegister(addr, value byte) error
	ReadAllRegisters() (map[byte]byte, error)
	ExportRegisterConfig() (map[byte]byte, error)
	SoftReset(c qmc5883p.Config) error
	SelfTest() error
}

// RegisterDebugHandler serves the register debug websocket and the live data
// endpoint for one magnetometer.
type RegisterDebugHandler struct {
	Dev RegisterDevice
	// Config is re-applied after a soft reset.
	Config qmc5883p.Config
}

// RegisterDebugSession holds WebSocket connection state for register debugging
type RegisterDebugSession struct {
	Conn *websocket.Conn
	dev  RegisterDevice
	cfg  qmc5883p.Config
}

// RegisterCmd is any request sent by the debug page.
type RegisterCmd struct {
	Action  string `json:"action"` // get_map, read, read_all, write, soft_reset, self_test, export_config
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// Response types
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "status", "error"
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"` // for bulk read
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Status      string                 `json:"status,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// HandleWS handles the WebSocket connection for register debugging
func (h *RegisterDebugHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &RegisterDebugSession{Conn: conn, dev: h.Dev, cfg: h.Config}

	// Send register map on connection
	if err := session.sendRegisterMap(); err != nil {
		log.Printf("register_debug: error sending register map: %v", err)
		return
	}

	// Message loop
	for {
		var cmd RegisterCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			break
		}

		switch cmd.Action {
		case "":
			session.sendError("missing or invalid action field")
		case "get_map":
			session.sendRegisterMap()
		case "read":
			session.handleRead(cmd)
		case "read_all":
			session.handleReadAll()
		case "write":
			session.handleWrite(cmd)
		case "soft_reset":
			session.handleSoftReset()
		case "self_test":
			session.handleSelfTest()
		case "export_config":
			session.handleExportConfig()
		default:
			session.sendError(fmt.Sprintf("unknown action: %s", cmd.Action))
		}
	}
}

// parseHexByte accepts "0x0A" or "0A".
func parseHexByte(s string) (byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}

func hexMap(regs map[byte]byte) map[string]string {
	out := make(map[string]string, len(regs))
	for addr, value := range regs {
		out[hexByte(addr)] = hexByte(value)
	}
	return out
}

func (s *RegisterDebugSession) handleRead(cmd RegisterCmd) {
	if cmd.Address == "" {
		s.sendError("missing addr field")
		return
	}
	addr, err := parseHexByte(cmd.Address)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", cmd.Address))
		return
	}

	value, err := s.dev.ReadRegister(addr)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    s.dev.Name(),
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleReadAll() {
	registers, err := s.dev.ReadAllRegisters()
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    s.dev.Name(),
		Registers: hexMap(registers),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleWrite(cmd RegisterCmd) {
	if cmd.Address == "" || cmd.Value == "" {
		s.sendError("missing addr or value field")
		return
	}

	addr, err := parseHexByte(cmd.Address)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", cmd.Address))
		return
	}
	value, err := parseHexByte(cmd.Value)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", cmd.Value))
		return
	}

	if err := s.dev.WriteRegister(addr, value); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}
	log.Printf("register_debug: wrote %s = %s", hexByte(addr), hexByte(value))

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    s.dev.Name(),
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	})
}

func (s *RegisterDebugSession) handleSoftReset() {
	if err := s.dev.SoftReset(s.cfg); err != nil {
		s.sendError(fmt.Sprintf("soft reset error: %v", err))
		return
	}
	log.Printf("register_debug: %s soft reset", s.dev.Name())
	s.Conn.WriteJSON(RegisterResponse{
		Type:    "status",
		Device:  s.dev.Name(),
		Status:  "reset",
		Message: "soft reset done, configuration re-applied",
	})
}

func (s *RegisterDebugSession) handleSelfTest() {
	resp := RegisterResponse{Type: "status", Device: s.dev.Name(), Status: "self_test_passed"}
	if err := s.dev.SelfTest(); err != nil {
		resp.Status = "self_test_failed"
		resp.Message = err.Error()
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleExportConfig() {
	registers, err := s.dev.ExportRegisterConfig()
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	configFile := RegisterConfigFile{
		Version:   1,
		Device:    "qmc5883p",
		Timestamp: time.Now().Format(time.RFC3339),
		Registers: hexMap(registers),
	}

	// Send as download
	configJSON, err := json.Marshal(configFile)
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}
	rawResp := map[string]interface{}{
		"type":     "export_config",
		"message":  "config exported",
		"config":   string(configJSON),
		"filename": fmt.Sprintf("qmc5883p_%s_registers.json", time.Now().Format("20060102_150405")),
	}
	s.Conn.WriteJSON(rawResp)
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	return s.Conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      "qmc5883p",
		RegisterMap: sensors.QMC5883PRegisterMap(),
	})
}

func (s *RegisterDebugSession) sendError(message string) {
	s.Conn.WriteJSON(RegisterResponse{
		Type:    "error",
		Message: message,
	})
}

// HandleMagData serves one live sample via REST API
func (h *RegisterDebugHandler) HandleMagData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sample, err := h.Dev.Next()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(sample)
}

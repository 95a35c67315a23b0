// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/relabs-tech/compass/internal/app"
	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/sensors"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	calDir := flag.String("caldir", ".", "directory for calibration files")
	flag.Parse()

	log.Println("starting QMC5883P register debug tool (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	log.Println("Initializing magnetometer...")
	src, err := sensors.NewMagSource(cfg)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer src.Close()

	regs := &app.RegisterDebugHandler{Dev: src, Config: cfg.QMC}
	cal := &app.CalibrationHandler{Src: src, OutDir: *calDir}

	http.HandleFunc("/ws", regs.HandleWS)
	http.HandleFunc("/ws/calibration", cal.HandleWS)

	// API endpoint for live magnetometer data
	http.HandleFunc("/api/mag", regs.HandleMagData)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/register_debug.html")
	})

	addr := fmt.Sprintf(":%d", cfg.RegisterDebugPort)
	log.Printf("Register debug tool listening on %s", addr)
	log.Printf("Open http://localhost%s in your browser", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

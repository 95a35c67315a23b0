// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/compass/internal/app"
	"github.com/relabs-tech/compass/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	mock := flag.Bool("mock", false, "publish a simulated magnetometer instead of the QMC5883P")
	flag.Parse()

	log.Println("starting compass magnetometer producer (QMC5883P → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMagProducer(*mock); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

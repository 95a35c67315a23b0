// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/compass/internal/app"
)

func main() {
	decl := flag.Float64("declination", 0, "magnetic declination in degrees, east positive")
	flag.Parse()

	log.Println("starting compass (mock console)")

	if err := app.RunMockConsole(*decl); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided hard/soft-iron calibration for the QMC5883P.
//
// Output:
//
//	Writes a JSON file in the current directory including calibration date/time and confidence.
//	Point MAG_CALIBRATION_FILE at it to have the producer apply it.
//
// Run:
//
//	go run ./cmd/calibration
//
// Notes / assumptions:
//   - Captures in Gauss with any existing calibration disabled.
//   - Mag calibration uses a min/max ellipsoid approximation (offset + diagonal scale).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/compass/internal/calibration"
	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/sensors"
)

const sampleHz = 50 // target loop frequency (best-effort)

func main() {
	in := bufio.NewReader(os.Stdin)

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	duration := flag.Duration("duration", 60*time.Second, "maximum capture time")
	out := flag.String("out", "", "output file (default: mag_<timestamp>_calibration.json)")
	flag.Parse()

	fmt.Println("=== Guided Magnetometer Calibration (QMC5883P) ===")
	fmt.Println()

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(fmt.Errorf("failed to load config from %s: %w", *configPath, err))
	}
	cfg := config.Get()
	cfg.MagCalibrationFile = "" // capture uncorrected data

	src, err := sensors.NewMagSource(cfg)
	if err != nil {
		fatal(err)
	}
	defer src.Close()
	fmt.Printf("Using %s\n\n", src.Name())

	fmt.Println("Rotate the device through all orientations (3D).")
	fmt.Println("Move away from large metal objects and power cables if possible.")
	fmt.Println("You can stop early by pressing ENTER again.")
	fmt.Println()
	waitEnter(in, fmt.Sprintf("Press ENTER to start magnetometer capture (up to %s)...", *duration))

	// Non-blocking ENTER detector
	stop := make(chan struct{}, 1)
	go func() {
		_, _ = in.ReadString('\n')
		stop <- struct{}{}
	}()

	values, elapsed, timedOut, err := calibration.Capture(src, time.Second/sampleHz, *duration, stop)
	if err != nil {
		fatal(err)
	}
	res := calibration.Compute(values, elapsed)
	if timedOut {
		res.Stats.Notes = append(res.Stats.Notes, "stopped_by_timeout")
	}

	fmt.Printf("\nSamples: %d in %.1fs\n", res.Stats.Samples, res.Stats.DurationSec)
	fmt.Printf("Mag offset (G):     X=%.4f Y=%.4f Z=%.4f\n", res.Offset.X, res.Offset.Y, res.Offset.Z)
	fmt.Printf("Mag half-range (G): X=%.4f Y=%.4f Z=%.4f | confidence=%.2f\n",
		res.Scale.X, res.Scale.Y, res.Scale.Z, res.Confidence)
	for _, n := range res.Stats.Notes {
		fmt.Printf("Note: %s\n", n)
	}

	name := *out
	if name == "" {
		name = fmt.Sprintf("mag_%s_calibration.json", time.Now().Format("2006-01-02T15-04-05Z07-00"))
	}
	if err := res.Calibration(time.Now()).Save(name); err != nil {
		fatal(err)
	}
	fmt.Printf("\nWrote: %s\n", name)
	fmt.Println("Set MAG_CALIBRATION_FILE in the config to apply it.")
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}

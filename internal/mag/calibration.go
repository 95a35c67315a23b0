// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mag

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Vec3 is a 3-axis value.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Calibration is a hard-iron offset plus a diagonal soft-iron scale, both in Gauss.
//
//	corrected = (raw - Offset) / Scale * mean(Scale)
//
// so the corrected field keeps its magnitude in Gauss.
type Calibration struct {
	SchemaVersion int     `json:"schema_version"`
	CalibrationAt string  `json:"calibration_at"` // RFC3339
	Offset        Vec3    `json:"offset"`
	Scale         Vec3    `json:"scale"`
	Confidence    float64 `json:"confidence"`
}

// Apply corrects v. A calibration with a zero scale axis only removes the offset.
func (c *Calibration) Apply(v Vec3) Vec3 {
	if c == nil {
		return v
	}
	out := Vec3{X: v.X - c.Offset.X, Y: v.Y - c.Offset.Y, Z: v.Z - c.Offset.Z}
	if c.Scale.X == 0 || c.Scale.Y == 0 || c.Scale.Z == 0 {
		return out
	}
	r := (c.Scale.X + c.Scale.Y + c.Scale.Z) / 3
	out.X = out.X / c.Scale.X * r
	out.Y = out.Y / c.Scale.Y * r
	out.Z = out.Z / c.Scale.Z * r
	return out
}

// LoadCalibration reads a calibration JSON file written by the calibration tool.
func LoadCalibration(path string) (*Calibration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var c Calibration
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	return &c, nil
}

// Save writes c as indented JSON.
func (c *Calibration) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

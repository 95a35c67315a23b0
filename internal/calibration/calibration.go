// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration estimates magnetometer hard-iron offset and per-axis
// soft-iron scale with the min/max method.
//
// The min/max approximation (offset + diagonal scale) is robust and easy,
// though not as accurate as a full 3x3 ellipsoid fit.
package calibration

import (
	"math"
	"time"

	"github.com/relabs-tech/compass/internal/mag"
)

const (
	// Below this half-range (Gauss) on any axis the rotation did not cover
	// enough orientations to trust the result.
	minHalfRange = 0.05

	// Confidence floor (we never want hard zero unless we error out)
	confFloor = 0.05

	// Fewer samples than this cannot judge sphericity.
	minSphericitySamples = 50
)

// Stats summarises a capture.
type Stats struct {
	Samples     int      `json:"samples"`
	DurationSec float64  `json:"duration_sec"`
	Mean        mag.Vec3 `json:"mean"`
	StdDev      mag.Vec3 `json:"stddev"`
	Min         mag.Vec3 `json:"min"`
	Max         mag.Vec3 `json:"max"`
	Notes       []string `json:"notes,omitempty"`
}

// Result is the output of Compute.
type Result struct {
	Offset     mag.Vec3 `json:"offset"`
	Scale      mag.Vec3 `json:"scale"` // per-axis half range
	Confidence float64  `json:"confidence"`
	Stats      Stats    `json:"stats"`
}

// Calibration converts r for storage.
func (r Result) Calibration(at time.Time) *mag.Calibration {
	return &mag.Calibration{
		SchemaVersion: 1,
		CalibrationAt: at.Format(time.RFC3339),
		Offset:        r.Offset,
		Scale:         r.Scale,
		Confidence:    r.Confidence,
	}
}

// Compute fits offset and scale to samples in Gauss taken while the sensor was
// rotated through all orientations.
func Compute(samples []mag.Vec3, dur time.Duration) Result {
	stats := computeStats(samples, dur)
	if len(samples) == 0 {
		stats.Notes = append(stats.Notes, "no_samples")
		return Result{Scale: mag.Vec3{X: 1, Y: 1, Z: 1}, Confidence: confFloor, Stats: stats}
	}

	offset := mag.Vec3{
		X: (stats.Max.X + stats.Min.X) / 2,
		Y: (stats.Max.Y + stats.Min.Y) / 2,
		Z: (stats.Max.Z + stats.Min.Z) / 2,
	}
	halfRange := mag.Vec3{
		X: (stats.Max.X - stats.Min.X) / 2,
		Y: (stats.Max.Y - stats.Min.Y) / 2,
		Z: (stats.Max.Z - stats.Min.Z) / 2,
	}

	if halfRange.X < minHalfRange || halfRange.Y < minHalfRange || halfRange.Z < minHalfRange {
		stats.Notes = append(stats.Notes, "insufficient_mag_excitation: rotate more in 3D / move away from metal")
		return Result{Offset: offset, Scale: mag.Vec3{X: 1, Y: 1, Z: 1}, Confidence: confFloor, Stats: stats}
	}

	coverage := coverageConfidence(halfRange)
	sphericity := sphericityConfidence(samples, offset, halfRange)

	confidence := clamp01(0.55*coverage + 0.45*sphericity)
	if confidence < confFloor {
		confidence = confFloor
	}
	return Result{Offset: offset, Scale: halfRange, Confidence: confidence, Stats: stats}
}

func coverageConfidence(halfRange mag.Vec3) float64 {
	// Encourage balanced excitation across axes
	m := (halfRange.X + halfRange.Y + halfRange.Z) / 3
	if m <= 0 {
		return confFloor
	}
	cv := std3(halfRange.X, halfRange.Y, halfRange.Z) / m
	return clamp01(1.0 - (cv / 0.7))
}

func sphericityConfidence(samples []mag.Vec3, offset, halfRange mag.Vec3) float64 {
	// After (raw-offset)/halfRange a full rotation should give near constant norms.
	n := len(samples)
	if n < minSphericitySamples {
		return confFloor
	}
	norms := make([]float64, 0, n)
	for _, s := range samples {
		v := mag.Vec3{
			X: (s.X - offset.X) / safeDiv(halfRange.X),
			Y: (s.Y - offset.Y) / safeDiv(halfRange.Y),
			Z: (s.Z - offset.Z) / safeDiv(halfRange.Z),
		}
		norms = append(norms, v.Norm())
	}
	mean, sd := meanStd(norms)
	if mean <= 0 {
		return confFloor
	}
	// cv 0.05 -> ~0.9, cv 0.15 -> ~0.7, cv 0.35 -> ~0.3
	return clamp01(1.0 - (sd/mean)/0.5)
}

func computeStats(values []mag.Vec3, dur time.Duration) Stats {
	n := len(values)
	if n == 0 {
		return Stats{DurationSec: dur.Seconds()}
	}
	minV := mag.Vec3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxV := mag.Vec3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	var sx, sy, sz float64
	for _, v := range values {
		sx += v.X
		sy += v.Y
		sz += v.Z
		minV.X = math.Min(minV.X, v.X)
		minV.Y = math.Min(minV.Y, v.Y)
		minV.Z = math.Min(minV.Z, v.Z)
		maxV.X = math.Max(maxV.X, v.X)
		maxV.Y = math.Max(maxV.Y, v.Y)
		maxV.Z = math.Max(maxV.Z, v.Z)
	}
	mean := mag.Vec3{X: sx / float64(n), Y: sy / float64(n), Z: sz / float64(n)}

	var vx, vy, vz float64
	for _, v := range values {
		dx := v.X - mean.X
		dy := v.Y - mean.Y
		dz := v.Z - mean.Z
		vx += dx * dx
		vy += dy * dy
		vz += dz * dz
	}
	return Stats{
		Samples:     n,
		DurationSec: dur.Seconds(),
		Mean:        mean,
		StdDev: mag.Vec3{
			X: math.Sqrt(vx / float64(n)),
			Y: math.Sqrt(vy / float64(n)),
			Z: math.Sqrt(vz / float64(n)),
		},
		Min: minV,
		Max: maxV,
	}
}

// ---------- Small math helpers ----------

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func safeDiv(x float64) float64 {
	if math.Abs(x) < 1e-9 {
		if x >= 0 {
			return 1e-9
		}
		return -1e-9
	}
	return x
}

func meanStd(xs []float64) (mean float64, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var s float64
	for _, v := range xs {
		d := v - mean
		s += d * d
	}
	sd = math.Sqrt(s / float64(len(xs)))
	return mean, sd
}

func std3(a, b, c float64) float64 {
	m := (a + b + c) / 3
	return math.Sqrt(((a-m)*(a-m) + (b-m)*(b-m) + (c-m)*(c-m)) / 3)
}

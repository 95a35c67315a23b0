// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import (
	"math"
	"time"

	"github.com/relabs-tech/compass/internal/mag"
)

// Earth field used by the mock, roughly central Europe.
const (
	mockHorizontalGauss = 0.2
	mockVerticalGauss   = 0.43
	mockLSBPerGauss     = 3750 // ±8G range
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock magnetometer that turns slowly on a level table,
// one revolution every 12 seconds.
func NewMockSource() mag.Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() (mag.Sample, error) {
	elapsed := time.Since(m.start).Seconds()
	yaw := math.Mod(elapsed*30, 360) * math.Pi / 180

	bx := mockHorizontalGauss * math.Cos(yaw)
	by := mockHorizontalGauss * math.Sin(yaw)
	bz := mockVerticalGauss

	return mag.Sample{
		Source: "mock",
		X:      int16(bx * mockLSBPerGauss),
		Y:      int16(by * mockLSBPerGauss),
		Z:      int16(bz * mockLSBPerGauss),
		Bx:     bx,
		By:     by,
		Bz:     bz,
		Norm:   mag.Vec3{X: bx, Y: by, Z: bz}.Norm(),
		Range:  "±8G",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"time"

	"github.com/relabs-tech/compass/internal/mag"
)

// Capture reads src every period until maxDur elapses or stop is closed or
// receives. Samples are returned in Gauss. timedOut reports which of the two
// ended the capture.
func Capture(src mag.Source, period, maxDur time.Duration, stop <-chan struct{}) (values []mag.Vec3, elapsed time.Duration, timedOut bool, err error) {
	start := time.Now()
	deadline := start.Add(maxDur)

	for {
		select {
		case <-stop:
			return values, time.Since(start), false, nil
		default:
		}
		if time.Now().After(deadline) {
			return values, time.Since(start), true, nil
		}
		s, err := src.Next()
		if err != nil {
			return nil, time.Since(start), false, err
		}
		if !s.Overflow {
			values = append(values, mag.Vec3{X: s.Bx, Y: s.By, Z: s.Bz})
		}
		time.Sleep(period)
	}
}

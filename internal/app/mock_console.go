// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/compass/internal/heading"
)

// RunMockConsole prints the mock magnetometer without a broker.
func RunMockConsole(declination float64) error {
	src := heading.NewMockSource()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		s, err := src.Next()
		if err != nil {
			return err
		}
		fmt.Println(FormatSample(s))
		if h, ok := NewHeadingReport(s, declination); ok {
			fmt.Println(FormatHeading(h))
		}
	}
	return nil
}

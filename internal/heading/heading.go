package heading

import (
	"math"
)

// Heading is the compass direction the sensor X axis points to.
type Heading struct {
	Degrees  float64 `json:"deg"` // [0, 360), clockwise from north
	Cardinal string  `json:"cardinal"`
}

var points = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// FromField computes the heading from the horizontal field components (any
// unit) with the sensor held level. declination is added so the result is
// relative to true north; east is positive.
//
//	heading = atan2(y, x) + declination
func FromField(x, y, declination float64) Heading {
	deg := math.Atan2(y, x)*180/math.Pi + declination
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return Heading{Degrees: deg, Cardinal: Cardinal(deg)}
}

// Cardinal returns the nearest point of a 16 point compass rose.
func Cardinal(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	i := int(math.Floor(deg/22.5+0.5)) % len(points)
	return points[i]
}

package mag

// Sample represents a single magnetometer measurement.
type Sample struct {
	Source string `json:"source"` // bus/address label, or "mock"

	X int16 `json:"x"` // raw counts
	Y int16 `json:"y"`
	Z int16 `json:"z"`

	Bx float64 `json:"bx"` // Gauss, after calibration when one is loaded
	By float64 `json:"by"`
	Bz float64 `json:"bz"`

	Norm     float64 `json:"norm"` // |B| in Gauss
	Range    string  `json:"range"`
	Overflow bool    `json:"overflow"`
	Time     string  `json:"time"` // RFC3339
}

// Source is anything that can provide magnetometer samples over time.
type Source interface {
	Next() (Sample, error)
}

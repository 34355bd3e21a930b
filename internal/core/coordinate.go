package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LightSpeed bounds the proper-time interval between two coordinates.
const LightSpeed = 299792458.0

// Coordinate is an immutable point in spacetime. T is in seconds.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	T float64 `json:"t"`
}

// At returns the spatial position of c at time t.
func (c Coordinate) At(t float64) Coordinate {
	return Coordinate{X: c.X, Y: c.Y, Z: c.Z, T: t}
}

// Spatial returns the spatial components as a vector.
func (c Coordinate) Spatial() []float64 {
	return []float64{c.X, c.Y, c.Z}
}

// Distance returns the Euclidean distance between the spatial parts of a and b.
func Distance(a, b Coordinate) float64 {
	return floats.Distance(a.Spatial(), b.Spatial(), 2)
}

// Interval returns the proper-time separation of a and b, or 0 when the two
// points are spacelike separated.
func Interval(a, b Coordinate) float64 {
	space := Distance(a, b)
	dt := math.Abs(a.T - b.T)
	if dt <= space/LightSpeed {
		return 0
	}
	return math.Sqrt(dt*dt - (space/LightSpeed)*(space/LightSpeed))
}

// Validate rejects coordinates with NaN or infinite components.
func (c Coordinate) Validate() error {
	for _, v := range []float64{c.X, c.Y, c.Z, c.T} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidCoordinateValue(c)
		}
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%g, %g, %g @ %g)", c.X, c.Y, c.Z, c.T)
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

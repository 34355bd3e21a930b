package wave

import "math"

// Clarity scores how well frequency resonates with target inside a band of
// the given width: 1 at an exact match, falling linearly to 0 at the band
// edge. ok is false outside the band.
func Clarity(frequency, target, width float64) (clarity float64, ok bool) {
	diff := math.Abs(frequency - target)
	if width <= 0 {
		return 1, diff == 0
	}
	if diff > width {
		return 0, false
	}
	return 1 - diff/width, true
}

// Resonant pairs an emission with its clarity against a listener.
type Resonant struct {
	Emission *Emission `json:"emission"`
	Clarity  float64   `json:"clarity"`
}

// Filter keeps the emissions resonating with target, in input order.
func Filter(emissions []*Emission, target, width float64) []Resonant {
	var out []Resonant
	for _, e := range emissions {
		if c, ok := Clarity(e.Frequency, target, width); ok {
			out = append(out, Resonant{Emission: e, Clarity: c})
		}
	}
	return out
}

package wave

import (
	"math"

	"github.com/nmxmxh/dmct/internal/core"
)

// FieldConfig holds the propagation constants of the trust field.
type FieldConfig struct {
	TrustSpeed     float64 `json:"trust_speed"`     // Propagation speed, distance units per second
	NeighborRadius float64 `json:"neighbor_radius"` // Spatial decay length
	DecayTime      float64 `json:"decay_time"`      // Temporal decay length, seconds
}

// DefaultFieldConfig returns the reference constants.
func DefaultFieldConfig() FieldConfig {
	return FieldConfig{
		TrustSpeed:     1.0,
		NeighborRadius: 6,
		DecayTime:      86400,
	}
}

// FieldAt evaluates the contribution of e at q. It is exactly zero outside
// the future light cone of the origin.
func (e *Emission) FieldAt(q core.Coordinate, cfg FieldConfig) float64 {
	r := core.Distance(e.Origin, q)
	dt := q.T - e.Origin.T
	travel := r / cfg.TrustSpeed

	if dt < 0 || dt < travel {
		return 0
	}

	decay := math.Exp(-r/cfg.NeighborRadius) * math.Exp(-dt/cfg.DecayTime)
	osc := math.Cos(2*math.Pi*e.Frequency*(dt-travel) + e.Phase)
	return e.Amplitude * decay * osc
}

// Superpose sums the fields of emissions at q.
func Superpose(emissions []*Emission, q core.Coordinate, cfg FieldConfig) float64 {
	total := 0.0
	for _, e := range emissions {
		total += e.FieldAt(q, cfg)
	}
	return total
}

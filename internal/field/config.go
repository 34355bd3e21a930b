package field

import (
	"time"

	"github.com/nmxmxh/dmct/internal/wave"
)

// Config holds node propagation and cascade-guard settings.
type Config struct {
	Field                 wave.FieldConfig `json:"field"`
	InterferenceThreshold float64          `json:"interference_threshold"` // Cascade when |field| exceeds this multiple of the local average
	MaxHops               int              `json:"max_hops"`               // Cascades stop once a lineage reaches this depth
	AmplitudeFloor        float64          `json:"amplitude_floor"`        // Cascades below this amplitude are suppressed
	DeliveryTimeout       time.Duration    `json:"delivery_timeout"`       // Per-neighbour delivery deadline
	SeenFilter            SeenFilterConfig `json:"seen_filter"`
}

// SeenFilterConfig sizes the bloom filters of the cascade guard. Both
// filters are rebuilt after ExpectedElements insertions.
type SeenFilterConfig struct {
	ExpectedElements  uint    `json:"expected_elements"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// DefaultConfig returns the reference propagation settings.
func DefaultConfig() Config {
	return Config{
		Field:                 wave.DefaultFieldConfig(),
		InterferenceThreshold: 3.0,
		MaxHops:               10,
		AmplitudeFloor:        0.05,
		DeliveryTimeout:       5 * time.Second,
		SeenFilter: SeenFilterConfig{
			ExpectedElements:  10000,
			FalsePositiveRate: 0.01,
		},
	}
}

// ConnectRadius is the distance under which Network links two nodes.
func (c Config) ConnectRadius() float64 {
	return 2 * c.Field.NeighborRadius
}

package consensus

// Config holds the ledger constants.
type Config struct {
	LightSpeed         float64 `json:"light_speed"`         // Speed of trust used for light cones and phases
	ResonanceTolerance float64 `json:"resonance_tolerance"` // Pairs resonate when |cos(phase)| exceeds this
	ConfirmThreshold   float64 `json:"confirm_threshold"`   // Buckets strictly above this are confirmed
	ConfidenceScale    float64 `json:"confidence_scale"`    // Amplitude giving full confidence
	KeyLength          int     `json:"key_length"`          // Data keys are truncated to this many runes
}

// DefaultConfig returns the reference ledger constants.
func DefaultConfig() Config {
	return Config{
		LightSpeed:         1.0,
		ResonanceTolerance: 0.8,
		ConfirmThreshold:   3.0,
		ConfidenceScale:    10.0,
		KeyLength:          50,
	}
}

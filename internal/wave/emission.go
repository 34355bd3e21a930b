// Package wave models emissions: positioned, timestamped signals carrying an
// amplitude, a frequency, a phase and an opaque payload, and the scalar
// field each one contributes at any point in spacetime.
package wave

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/nmxmxh/dmct/internal/core"
)

// Payload keys written by the propagation layer.
const (
	KeyType         = "type"
	KeyCascadedFrom = "cascaded_from"
	KeyHops         = "hops"
	KeyRoot         = "root"
)

// CascadeDecay scales the amplitude of a cascaded emission.
const CascadeDecay = 0.8

// Payload is the opaque data carried by an emission.
type Payload map[string]any

// Clone returns a shallow copy of p. A nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+3)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Type returns the "type" tag of the payload, if any.
func (p Payload) Type() string {
	s, _ := p[KeyType].(string)
	return s
}

// Emission is a single wave. ID is derived from the origin only; it is
// deterministic but neither collision nor forgery resistant.
type Emission struct {
	ID        string          `json:"id"`
	Origin    core.Coordinate `json:"origin"`
	Amplitude float64         `json:"amplitude"`
	Frequency float64         `json:"frequency"`
	Phase     float64         `json:"phase"`
	Payload   Payload         `json:"data"`
}

// New builds an emission and derives its identifier. The phase is reduced
// to [0, 2π).
func New(origin core.Coordinate, amplitude, frequency, phase float64, payload Payload) *Emission {
	if payload == nil {
		payload = Payload{}
	}
	return &Emission{
		ID:        DeriveID(origin),
		Origin:    origin,
		Amplitude: amplitude,
		Frequency: frequency,
		Phase:     normalizePhase(phase),
		Payload:   payload,
	}
}

// normalizePhase reduces phase to [0, 2π).
func normalizePhase(phase float64) float64 {
	p := math.Mod(phase, 2*math.Pi)
	if p < 0 {
		p += 2 * math.Pi
	}
	return p
}

// DeriveID hashes the origin coordinate into a short hex identifier.
func DeriveID(origin core.Coordinate) string {
	h := sha256.New()
	for _, v := range []float64{origin.X, origin.Y, origin.Z, origin.T} {
		h.Write([]byte(strconv.FormatFloat(v, 'g', -1, 64)))
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Validate rejects emissions that cannot produce a finite field.
func (e *Emission) Validate() error {
	if err := e.Origin.Validate(); err != nil {
		return err
	}
	for _, v := range []float64{e.Amplitude, e.Frequency, e.Phase} {
		if !core.Finite(v) {
			return core.ErrInvalidAmplitudeValue(v).WithContext("emission_id", e.ID)
		}
	}
	return nil
}

// Hops is the number of cascades between e and its lineage root.
func (e *Emission) Hops() int {
	switch v := e.Payload[KeyHops].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Root is the id of the emission that started e's cascade lineage.
func (e *Emission) Root() string {
	if root, ok := e.Payload[KeyRoot].(string); ok && root != "" {
		return root
	}
	return e.ID
}

// CascadedFrom returns the parent id, or "" for an original emission.
func (e *Emission) CascadedFrom() string {
	s, _ := e.Payload[KeyCascadedFrom].(string)
	return s
}

// Cascade derives the re-emission of parent from a node at origin. The new
// amplitude is parent.Amplitude * CascadeDecay and the payload records the
// parent id, the hop count and the lineage root.
func Cascade(parent *Emission, origin core.Coordinate, frequency, phase float64) *Emission {
	payload := parent.Payload.Clone()
	payload[KeyCascadedFrom] = parent.ID
	payload[KeyHops] = parent.Hops() + 1
	payload[KeyRoot] = parent.Root()
	return New(origin, CascadedAmplitude(parent), frequency, phase, payload)
}

// CascadedAmplitude is the amplitude a cascade of parent would carry.
func CascadedAmplitude(parent *Emission) float64 {
	return parent.Amplitude * CascadeDecay
}

package wave

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nmxmxh/dmct/internal/core"
)

// Encode serialises e as a protobuf Struct for stream transports. Payload
// values must be JSON-compatible.
func Encode(e *Emission) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"id": e.ID,
		"origin": map[string]interface{}{
			"x": e.Origin.X,
			"y": e.Origin.Y,
			"z": e.Origin.Z,
			"t": e.Origin.T,
		},
		"amplitude": e.Amplitude,
		"frequency": e.Frequency,
		"phase":     e.Phase,
		"data":      map[string]interface{}(e.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build emission struct: %w", err)
	}
	return proto.Marshal(s)
}

// Decode parses the output of Encode. Decoded payload numbers are float64.
func Decode(data []byte) (*Emission, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, core.ErrDecodeFailed("emission", err)
	}
	return fromMap(s.AsMap())
}

// DecodeJSON parses the JSON packet form of an emission.
func DecodeJSON(data []byte) (*Emission, error) {
	var e Emission
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, core.ErrDecodeFailed("emission", err)
	}
	return finish(&e)
}

func fromMap(m map[string]interface{}) (*Emission, error) {
	origin, ok := m["origin"].(map[string]interface{})
	if !ok {
		return nil, core.ErrDecodeFailed("emission", fmt.Errorf("missing origin"))
	}

	var e Emission
	e.ID, _ = m["id"].(string)
	e.Origin = core.Coordinate{
		X: number(origin["x"]),
		Y: number(origin["y"]),
		Z: number(origin["z"]),
		T: number(origin["t"]),
	}
	e.Amplitude = number(m["amplitude"])
	e.Frequency = number(m["frequency"])
	e.Phase = number(m["phase"])
	if data, ok := m["data"].(map[string]interface{}); ok {
		e.Payload = Payload(data)
	}
	return finish(&e)
}

func finish(e *Emission) (*Emission, error) {
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	if e.ID == "" {
		e.ID = DeriveID(e.Origin)
	}
	e.Phase = normalizePhase(e.Phase)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func number(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

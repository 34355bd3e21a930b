package consensus

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"unicode/utf8"

	"github.com/nmxmxh/dmct/internal/core"
)

// Event is a ledger entry. It is also the interchange form used by
// snapshots and the watch feed.
type Event struct {
	ID            string     `json:"id"`
	Position      [3]float64 `json:"position"`
	Time          float64    `json:"time"`
	Data          any        `json:"data"`
	Amplitude     float64    `json:"amplitude"`
	Confirmations float64    `json:"confirmations"`
}

// Coordinate returns the event's spacetime point.
func (e *Event) Coordinate() core.Coordinate {
	return core.Coordinate{X: e.Position[0], Y: e.Position[1], Z: e.Position[2], T: e.Time}
}

// Validate rejects events with non-finite numbers.
func (e *Event) Validate() error {
	if err := e.Coordinate().Validate(); err != nil {
		return err
	}
	if !core.Finite(e.Amplitude) {
		return core.ErrInvalidAmplitudeValue(e.Amplitude).WithContext("event_id", e.ID)
	}
	return nil
}

// EventID derives the content id of an event: the first 8 hex characters
// of FNV-1a over the position, the time and the canonical data.
func EventID(position core.Coordinate, t float64, data any) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "(%g, %g, %g)%g%s", position.X, position.Y, position.Z, t, canonical(data))
	return fmt.Sprintf("%08x", h.Sum32())
}

// DataKey is the standing-wave bucket key of data: its canonical JSON form,
// map keys sorted, truncated to 50 runes.
func DataKey(data any) string {
	return truncate(canonical(data), DefaultConfig().KeyLength)
}

func canonical(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(b)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

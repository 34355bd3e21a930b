// Package intent routes free-form intents to application frequency bands
// and emits them into the field at a frequency inside the band.
package intent

import (
	"fmt"
	"strings"
)

// Application is one of the fixed frequency bands sharing the field.
type Application int

const (
	Money Application = iota
	Governance
	Identity
	Social
	Knowledge
	Health
	Creativity
	Environment
	Consciousness
)

var applicationNames = [...]string{
	Money:         "money",
	Governance:    "governance",
	Identity:      "identity",
	Social:        "social",
	Knowledge:     "knowledge",
	Health:        "health",
	Creativity:    "creativity",
	Environment:   "environment",
	Consciousness: "consciousness",
}

// Applications lists every application in band order.
func Applications() []Application {
	out := make([]Application, len(applicationNames))
	for i := range applicationNames {
		out[i] = Application(i)
	}
	return out
}

func (a Application) String() string {
	if a < 0 || int(a) >= len(applicationNames) {
		return fmt.Sprintf("application(%d)", int(a))
	}
	return applicationNames[a]
}

// Band is a half-open frequency interval [Low, High).
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Width is High - Low.
func (b Band) Width() float64 { return b.High - b.Low }

// Contains reports whether f lies in the band.
func (b Band) Contains(f float64) bool { return f >= b.Low && f < b.High }

// Band returns the application's frequency band: a tenth wide, starting at
// 0.1 for Money.
func (a Application) Band() Band {
	low := 0.1 * float64(a+1)
	return Band{Low: low, High: low + 0.1}
}

// ParseApplication resolves a name produced by String.
func ParseApplication(name string) (Application, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range applicationNames {
		if n == name {
			return Application(i), nil
		}
	}
	return 0, fmt.Errorf("unknown application %q", name)
}

func (a Application) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Application) UnmarshalText(text []byte) error {
	parsed, err := ParseApplication(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
